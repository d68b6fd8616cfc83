package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Airtable field names on the Templates table.
const (
	FieldTemplateName = "Template Name"
	FieldJSON         = "JSON"
	FieldProjectURL   = "Layer Project URL"
	FieldStatus       = "Status"
)

// Record status values.
const (
	StatusPush       = "Push"
	StatusPublished  = "Published"
	StatusProcessing = "Processing"
)

// TemplateRecord is one row of the Templates table.
type TemplateRecord struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

func (r TemplateRecord) stringField(name string) string {
	if r.Fields == nil {
		return ""
	}
	if s, ok := r.Fields[name].(string); ok {
		return s
	}
	return ""
}

func (r TemplateRecord) TemplateName() string { return r.stringField(FieldTemplateName) }
func (r TemplateRecord) SchemaJSON() string   { return r.stringField(FieldJSON) }
func (r TemplateRecord) ProjectURL() string   { return strings.TrimSpace(r.stringField(FieldProjectURL)) }
func (r TemplateRecord) Status() string       { return r.stringField(FieldStatus) }

// Schema is the ordered category list parsed from a record's JSON field.
type Schema []Category

type Category struct {
	Name   string  `json:"name" validate:"required"`
	Fields []Field `json:"fields" validate:"dive"`
}

type Field struct {
	Name    string          `json:"name" validate:"required"`
	Type    string          `json:"type" validate:"required"`
	Options json.RawMessage `json:"options,omitempty"`
}

// HasOptions reports whether the field carries an options value worth
// sending. Absent, null and falsy JSON scalars count as no options.
func (f Field) HasOptions() bool {
	raw := bytes.TrimSpace(f.Options)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// FieldCount is the total number of fields across all categories.
func (s Schema) FieldCount() int {
	n := 0
	for _, c := range s {
		n += len(c.Fields)
	}
	return n
}

var validate = validator.New()

// ParseSchema decodes a record's JSON text into a Schema. Only presence is
// checked: every category needs a name and every field a name and a type.
func ParseSchema(text string) (Schema, error) {
	var schema Schema
	if err := json.Unmarshal([]byte(text), &schema); err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}
	if schema == nil {
		return nil, fmt.Errorf("invalid schema JSON: expected an array of categories")
	}
	for i, category := range schema {
		if err := validate.Struct(category); err != nil {
			return nil, fmt.Errorf("category %d (%q): %w", i, category.Name, err)
		}
	}
	return schema, nil
}

// ProjectIDFromURL returns the final path segment of a Layer project URL.
func ProjectIDFromURL(projectURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// ProjectURL builds the canonical project URL under appURL.
func ProjectURL(appURL, projectID string) string {
	return strings.TrimRight(appURL, "/") + "/project/" + projectID
}

// NormalizeName is the comparison key for category names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
