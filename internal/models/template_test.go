package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchema_PreservesOrder(t *testing.T) {
	schema, err := ParseSchema(`[
		{"name":"Rooms","fields":[{"name":"Width","type":"number"},{"name":"Kind","type":"select","options":{"choices":["a"]}}]},
		{"name":"Budget","fields":[]}
	]`)

	require.NoError(t, err)
	require.Len(t, schema, 2)
	assert.Equal(t, "Rooms", schema[0].Name)
	assert.Equal(t, "Budget", schema[1].Name)
	assert.Equal(t, "Kind", schema[0].Fields[1].Name)
	assert.Equal(t, 2, schema.FieldCount())
}

func TestParseSchema_Errors(t *testing.T) {
	for _, text := range []string{
		``,
		`null`,
		`{"name":"Rooms"}`,
		`[{"fields":[]}]`,
		`[{"name":"Rooms","fields":[{"type":"text"}]}]`,
	} {
		t.Run(text, func(t *testing.T) {
			_, err := ParseSchema(text)
			assert.Error(t, err)
		})
	}
}

func TestField_HasOptions(t *testing.T) {
	tests := map[string]bool{
		``:                      false,
		`null`:                  false,
		`false`:                 false,
		`0`:                     false,
		`""`:                    false,
		`true`:                  true,
		`{}`:                    true,
		`["a"]`:                 true,
		`{"choices":["a","b"]}`: true,
	}

	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			f := Field{Name: "x", Type: "text", Options: json.RawMessage(raw)}
			assert.Equal(t, want, f.HasOptions())
		})
	}
}

func TestProjectIDFromURL(t *testing.T) {
	tests := map[string]string{
		"https://app.layer.team/project/abc123":   "abc123",
		"https://app.layer.team/project/abc123/":  "abc123",
		" https://app.layer.team/project/abc123 ": "abc123",
		"abc123":                                  "abc123",
	}

	for in, want := range tests {
		assert.Equal(t, want, ProjectIDFromURL(in), in)
	}
}

func TestProjectURL(t *testing.T) {
	assert.Equal(t, "https://app.layer.team/project/p42", ProjectURL("https://app.layer.team/", "p42"))
}

func TestTemplateRecordAccessors(t *testing.T) {
	r := TemplateRecord{ID: "rec1", Fields: map[string]interface{}{
		FieldTemplateName: "Kitchen Remodel",
		FieldProjectURL:   "  https://app.layer.team/project/p1  ",
		FieldJSON:         float64(3),
	}}

	assert.Equal(t, "Kitchen Remodel", r.TemplateName())
	assert.Equal(t, "https://app.layer.team/project/p1", r.ProjectURL())
	assert.Empty(t, r.SchemaJSON())
	assert.Empty(t, r.Status())
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, NormalizeName("Rooms"), NormalizeName("  ROOMS "))
}
