package layer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"template-publisher/internal/common/errors"
	httpclient "template-publisher/internal/common/http"
	"template-publisher/internal/models"
)

const (
	ServiceName    = "layer"
	DefaultBaseURL = "https://api.layer.team"
	DefaultAppURL  = "https://app.layer.team"
)

var (
	// Created entities must come back with an id, string or numeric.
	createdSchema = gojsonschema.NewStringLoader(`{
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": ["string", "number"]}}
	}`)

	namedListSchema = gojsonschema.NewStringLoader(`{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["name"],
			"properties": {"name": {"type": "string"}}
		}
	}`)
)

// Project is the subset of a created Layer project the publisher uses.
type Project struct {
	ID string
}

// Category is a remote category as returned by the list endpoint.
type Category struct {
	ID   string
	Name string
}

// Field is a remote field as returned by the list endpoint.
type Field struct {
	ID   string
	Name string
	Type string
}

type Client struct {
	http *httpclient.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpclient.NewClient(ServiceName, baseURL, apiKey, timeout)}
}

type createProjectRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"isPublic"`
}

// CreateProject creates a project and returns its id.
func (c *Client) CreateProject(ctx context.Context, name string, isPublic bool) (*Project, error) {
	resp, err := c.http.Do(ctx, "create_project", http.MethodPost, "/v1/projects", createProjectRequest{
		Name:     name,
		IsPublic: isPublic,
	})
	if err != nil {
		return nil, err
	}
	id, err := createdID(resp.Body, "project")
	if err != nil {
		return nil, err
	}
	return &Project{ID: id}, nil
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

// CreateCategory creates a category in projectID and returns its id.
func (c *Client) CreateCategory(ctx context.Context, projectID, name string) (string, error) {
	path := fmt.Sprintf("/v1/projects/%s/categories", url.PathEscape(projectID))
	resp, err := c.http.Do(ctx, "create_category", http.MethodPost, path, createCategoryRequest{Name: name})
	if err != nil {
		return "", err
	}
	return createdID(resp.Body, "category")
}

// ListCategories returns the project's categories. Anything other than an
// array of named objects is a contract violation.
func (c *Client) ListCategories(ctx context.Context, projectID string) ([]Category, error) {
	path := fmt.Sprintf("/v1/projects/%s/categories", url.PathEscape(projectID))
	resp, err := c.http.Do(ctx, "list_categories", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeNamedList(resp.Body, "category list")
	if err != nil {
		return nil, err
	}
	categories := make([]Category, 0, len(items))
	for _, item := range items {
		categories = append(categories, Category{ID: item.id(), Name: item.Name})
	}
	return categories, nil
}

type createFieldRequest struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Options json.RawMessage `json:"options,omitempty"`
}

// CreateField creates a field under categoryID. options is sent only when
// the definition carries a value; the key is omitted otherwise.
func (c *Client) CreateField(ctx context.Context, categoryID string, field models.Field) error {
	req := createFieldRequest{Name: field.Name, Type: field.Type}
	if field.HasOptions() {
		req.Options = field.Options
	}
	path := fmt.Sprintf("/v1/categories/%s/fields", url.PathEscape(categoryID))
	_, err := c.http.Do(ctx, "create_field", http.MethodPost, path, req)
	return err
}

// ListFields returns the fields already present in a category.
func (c *Client) ListFields(ctx context.Context, categoryID string) ([]Field, error) {
	path := fmt.Sprintf("/v1/categories/%s/fields", url.PathEscape(categoryID))
	resp, err := c.http.Do(ctx, "list_fields", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeNamedList(resp.Body, "field list")
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, len(items))
	for _, item := range items {
		fields = append(fields, Field{ID: item.id(), Name: item.Name, Type: item.Type})
	}
	return fields, nil
}

type namedItem struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
	Type string          `json:"type"`
}

func (n namedItem) id() string {
	return rawID(n.ID)
}

func decodeNamedList(body []byte, what string) ([]namedItem, error) {
	result, err := gojsonschema.Validate(namedListSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, errors.NewContractViolationError(ServiceName, fmt.Sprintf("%s is not valid JSON: %v", what, err), body)
	}
	if !result.Valid() {
		return nil, errors.NewContractViolationError(ServiceName, fmt.Sprintf("Layer API didn't return a %s: %s", what, describe(result)), body)
	}

	var items []namedItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, errors.NewContractViolationError(ServiceName, err.Error(), body)
	}
	return items, nil
}

func createdID(body []byte, what string) (string, error) {
	result, err := gojsonschema.Validate(createdSchema, gojsonschema.NewBytesLoader(body))
	if err != nil || !result.Valid() {
		return "", errors.NewContractViolationError(ServiceName, fmt.Sprintf("%s creation response has no id", what), body)
	}

	var created struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.NewContractViolationError(ServiceName, err.Error(), body)
	}
	id := rawID(created.ID)
	if id == "" {
		return "", errors.NewContractViolationError(ServiceName, fmt.Sprintf("%s creation response has an empty id", what), body)
	}
	return id, nil
}

// rawID renders a JSON string or number id as a plain string.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func describe(result *gojsonschema.Result) string {
	msg := ""
	for i, desc := range result.Errors() {
		if i > 0 {
			msg += "; "
		}
		msg += desc.String()
	}
	return msg
}
