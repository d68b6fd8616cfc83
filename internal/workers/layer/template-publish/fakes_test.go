package templatepublish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"template-publisher/internal/common/airtable"
	"template-publisher/internal/common/audit"
	"template-publisher/internal/common/layer"
	"template-publisher/internal/common/logger"
	"template-publisher/internal/common/notify"
	"template-publisher/internal/models"
)

const (
	testBaseID = "appBase"
	testTable  = "Templates"
	tablePath  = "/" + testBaseID + "/" + testTable
)

type recordedCall struct {
	Service string
	Method  string
	Path    string
	Query   url.Values
	Body    map[string]interface{}
}

func (c recordedCall) String() string {
	return c.Service + " " + c.Method + " " + c.Path
}

// fakeBackend serves a fake Airtable table and a fake Layer API and records
// every request in arrival order.
type fakeBackend struct {
	mu    sync.Mutex
	calls []recordedCall

	records            []models.TemplateRecord
	projectBody        string
	listCategoriesBody string
	fieldLists         map[string]string
	failOn             string
	nextCategory       int

	airtable *airtable.Client
	layer    *layer.Client
}

func newFakeBackend(t *testing.T, records ...models.TemplateRecord) *fakeBackend {
	t.Helper()
	if records == nil {
		records = []models.TemplateRecord{}
	}
	f := &fakeBackend{
		records:            records,
		projectBody:        `{"id":"p42","name":"ignored"}`,
		listCategoriesBody: `[]`,
		fieldLists:         map[string]string{},
	}

	airtableServer := httptest.NewServer(http.HandlerFunc(f.serveAirtable))
	t.Cleanup(airtableServer.Close)
	layerServer := httptest.NewServer(http.HandlerFunc(f.serveLayer))
	t.Cleanup(layerServer.Close)

	f.airtable = airtable.NewClient(airtableServer.URL, "airtable-key", testBaseID, testTable, 0)
	f.layer = layer.NewClient(layerServer.URL, "layer-key", 0)
	return f
}

func (f *fakeBackend) record(service string, r *http.Request) recordedCall {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	c := recordedCall{
		Service: service,
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Body:    body,
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return c
}

func (f *fakeBackend) shouldFail(c recordedCall) bool {
	return f.failOn != "" && strings.HasPrefix(c.Method+" "+c.Path, f.failOn)
}

func (f *fakeBackend) serveAirtable(w http.ResponseWriter, r *http.Request) {
	c := f.record("airtable", r)
	w.Header().Set("Content-Type", "application/json")
	if f.shouldFail(c) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"airtable unavailable"}`))
		return
	}

	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"records": f.records})
	case http.MethodPatch:
		_, _ = w.Write([]byte(`{"records":[]}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBackend) serveLayer(w http.ResponseWriter, r *http.Request) {
	c := f.record("layer", r)
	w.Header().Set("Content-Type", "application/json")
	if f.shouldFail(c) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"layer unavailable"}`))
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v1/projects":
		_, _ = w.Write([]byte(f.projectBody))
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/categories"):
		f.mu.Lock()
		f.nextCategory++
		n := f.nextCategory
		f.mu.Unlock()
		fmt.Fprintf(w, `{"id":"c%d"}`, n)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/categories"):
		_, _ = w.Write([]byte(f.listCategoriesBody))
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/fields"):
		_, _ = w.Write([]byte(`{"id":"f1"}`))
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/fields"):
		categoryID := strings.Split(strings.TrimPrefix(path, "/v1/categories/"), "/")[0]
		body, ok := f.fieldLists[categoryID]
		if !ok {
			body = `[]`
		}
		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBackend) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

func (f *fakeBackend) callsTo(service, method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Service == service && (method == "" || c.Method == method) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) deps(t *testing.T) ServiceDependencies {
	return ServiceDependencies{
		Logger:   logger.NewTestLogger(t),
		Records:  f.airtable,
		Projects: f.layer,
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.AppURL = "https://app.layer.team"
	return cfg
}

func templateRecord(id, name, schemaJSON, projectURL string) models.TemplateRecord {
	fields := map[string]interface{}{models.FieldStatus: models.StatusPush}
	if name != "" {
		fields[models.FieldTemplateName] = name
	}
	if schemaJSON != "" {
		fields[models.FieldJSON] = schemaJSON
	}
	if projectURL != "" {
		fields[models.FieldProjectURL] = projectURL
	}
	return models.TemplateRecord{ID: id, Fields: fields}
}

// patchedFields returns the fields of the single record in a PATCH body.
func patchedFields(t *testing.T, c recordedCall) map[string]interface{} {
	t.Helper()
	records, ok := c.Body["records"].([]interface{})
	if !ok || len(records) != 1 {
		t.Fatalf("expected one record in PATCH body, got %v", c.Body)
	}
	rec := records[0].(map[string]interface{})
	return rec["fields"].(map[string]interface{})
}

type fakePublishRecorder struct {
	runs []audit.PublishRun
	err  error
}

func (f *fakePublishRecorder) RecordPublish(_ context.Context, run audit.PublishRun) error {
	f.runs = append(f.runs, run)
	return f.err
}

type fakeValidationRecorder struct {
	reports []audit.ValidationReport
}

func (f *fakeValidationRecorder) RecordValidation(_ context.Context, report audit.ValidationReport) error {
	f.reports = append(f.reports, report)
	return nil
}

type fakeNotifier struct {
	failures []notify.Failure
}

func (f *fakeNotifier) NotifyFailure(_ context.Context, failure notify.Failure) {
	f.failures = append(f.failures, failure)
}
