package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSink_RecordPublish(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run := PublishRun{
		RunID:             "run-1",
		RecordID:          "rec1",
		TemplateName:      "Kitchen Remodel",
		Mode:              "create",
		ProjectID:         "p42",
		ProjectURL:        "https://app.layer.team/project/p42",
		ProjectCreated:    true,
		CategoriesCreated: 1,
		FieldsCreated:     2,
		Outcome:           OutcomePublished,
		StartedAt:         started,
		FinishedAt:        started.Add(time.Second),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO publish_runs")).
		WithArgs("run-1", "rec1", "Kitchen Remodel", "create", "p42", "https://app.layer.team/project/p42",
			true, 1, 2, OutcomePublished, nil, started, started.Add(time.Second)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewPostgresSink(db).RecordPublish(context.Background(), run)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_RecordPublishError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO publish_runs")).
		WillReturnError(errors.New("relation does not exist"))

	err = NewPostgresSink(db).RecordPublish(context.Background(), PublishRun{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestPostgresSink_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS publish_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresSink(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSink_RecordValidation(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotDoc    ValidationReport
	)
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotDoc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	report := ValidationReport{
		RunID:     "run-1",
		RecordID:  "rec1",
		ProjectID: "abc123",
		Categories: []CategoryCheck{
			{Name: "Rooms", RemoteName: "rooms", Outcome: "mismatch"},
			{Name: "Budget", Outcome: "not_found"},
		},
		Mismatched: 1,
		Missing:    1,
	}

	err := NewElasticsearchSink(client, "").RecordValidation(context.Background(), report)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.True(t, strings.HasPrefix(gotPath, "/"+DefaultIndex+"/_doc/"), gotPath)
	assert.Equal(t, "abc123", gotDoc.ProjectID)
	require.Len(t, gotDoc.Categories, 2)
	assert.Equal(t, "not_found", gotDoc.Categories[1].Outcome)
}

func TestElasticsearchSink_ErrorResponse(t *testing.T) {
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := NewElasticsearchSink(client, "reports").RecordValidation(context.Background(), ValidationReport{RunID: "r", RecordID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}
