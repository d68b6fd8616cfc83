package layer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"template-publisher/internal/common/errors"
	"template-publisher/internal/models"
)

type capturedRequest struct {
	method string
	path   string
	body   map[string]interface{}
}

func newServer(t *testing.T, status int, response string) (*Client, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer layer-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		captured = append(captured, capturedRequest{method: r.Method, path: r.URL.Path, body: body})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return NewClient(server.URL, "layer-key", 0), &captured
}

func TestCreateProject(t *testing.T) {
	c, captured := newServer(t, http.StatusCreated, `{"id":"p42","name":"Kitchen Remodel"}`)

	project, err := c.CreateProject(context.Background(), "Kitchen Remodel", true)

	require.NoError(t, err)
	assert.Equal(t, "p42", project.ID)
	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/v1/projects", req.path)
	assert.Equal(t, map[string]interface{}{"name": "Kitchen Remodel", "isPublic": true}, req.body)
}

func TestCreateProject_NumericID(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{"id":1234}`)

	project, err := c.CreateProject(context.Background(), "Kitchen Remodel", true)

	require.NoError(t, err)
	assert.Equal(t, "1234", project.ID)
}

func TestCreateProject_ContractViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no id", `{"name":"Kitchen Remodel"}`},
		{"empty id", `{"id":""}`},
		{"object id", `{"id":{"value":"p42"}}`},
		{"array", `[]`},
		{"not json", `ok`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, http.StatusOK, tt.body)

			_, err := c.CreateProject(context.Background(), "Kitchen Remodel", true)

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeRemoteContractViolation, errors.CodeOf(err))
		})
	}
}

func TestCreateCategory(t *testing.T) {
	c, captured := newServer(t, http.StatusOK, `{"id":"c1"}`)

	id, err := c.CreateCategory(context.Background(), "p42", "Materials")

	require.NoError(t, err)
	assert.Equal(t, "c1", id)
	assert.Equal(t, "/v1/projects/p42/categories", (*captured)[0].path)
	assert.Equal(t, map[string]interface{}{"name": "Materials"}, (*captured)[0].body)
}

func TestCreateField_Options(t *testing.T) {
	tests := []struct {
		name        string
		options     string
		wantOptions interface{}
	}{
		{"object", `{"choices":["A","B"]}`, map[string]interface{}{"choices": []interface{}{"A", "B"}}},
		{"true", `true`, true},
		{"absent", ``, nil},
		{"null", `null`, nil},
		{"false", `false`, nil},
		{"zero", `0`, nil},
		{"empty string", `""`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, captured := newServer(t, http.StatusOK, `{"id":"f1"}`)
			field := models.Field{Name: "Kind", Type: "select"}
			if tt.options != "" {
				field.Options = json.RawMessage(tt.options)
			}

			require.NoError(t, c.CreateField(context.Background(), "c1", field))

			body := (*captured)[0].body
			assert.Equal(t, "/v1/categories/c1/fields", (*captured)[0].path)
			assert.Equal(t, "Kind", body["name"])
			assert.Equal(t, "select", body["type"])
			if tt.wantOptions == nil {
				assert.NotContains(t, body, "options")
				return
			}
			assert.Equal(t, tt.wantOptions, body["options"])
		})
	}
}

func TestListCategories(t *testing.T) {
	c, captured := newServer(t, http.StatusOK, `[{"id":"c1","name":"Rooms"},{"id":7,"name":"Budget"}]`)

	categories, err := c.ListCategories(context.Background(), "p42")

	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: "c1", Name: "Rooms"}, {ID: "7", Name: "Budget"}}, categories)
	assert.Equal(t, http.MethodGet, (*captured)[0].method)
	assert.Equal(t, "/v1/projects/p42/categories", (*captured)[0].path)
}

func TestListCategories_NotAList(t *testing.T) {
	for _, body := range []string{`{"categories":[]}`, `null`, `[{"id":"c1"}]`} {
		t.Run(body, func(t *testing.T) {
			c, _ := newServer(t, http.StatusOK, body)

			_, err := c.ListCategories(context.Background(), "p42")

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeRemoteContractViolation, errors.CodeOf(err))
			assert.Contains(t, err.Error(), "Layer API didn't return a category list")
		})
	}
}

func TestListFields(t *testing.T) {
	c, captured := newServer(t, http.StatusOK, `[{"id":"f1","name":"Width","type":"number"}]`)

	fields, err := c.ListFields(context.Background(), "c1")

	require.NoError(t, err)
	assert.Equal(t, []Field{{ID: "f1", Name: "Width", Type: "number"}}, fields)
	assert.Equal(t, "/v1/categories/c1/fields", (*captured)[0].path)
}

func TestRemoteFailure(t *testing.T) {
	c, _ := newServer(t, http.StatusBadGateway, `upstream down`)

	_, err := c.CreateCategory(context.Background(), "p42", "Materials")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRemoteRequestFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}
