package audit

import (
	"context"
	"database/sql"
	"fmt"
)

const createPublishRunsTable = `
CREATE TABLE IF NOT EXISTS publish_runs (
	id                 BIGSERIAL PRIMARY KEY,
	run_id             TEXT NOT NULL,
	record_id          TEXT NOT NULL,
	template_name      TEXT NOT NULL,
	mode               TEXT NOT NULL,
	project_id         TEXT,
	project_url        TEXT,
	project_created    BOOLEAN NOT NULL DEFAULT FALSE,
	categories_created INTEGER NOT NULL DEFAULT 0,
	fields_created     INTEGER NOT NULL DEFAULT 0,
	outcome            TEXT NOT NULL,
	error              TEXT,
	started_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ NOT NULL
)`

const insertPublishRun = `
INSERT INTO publish_runs (
	run_id, record_id, template_name, mode, project_id, project_url, project_created,
	categories_created, fields_created, outcome, error, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// PostgresSink writes one publish_runs row per processed record.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createPublishRunsTable); err != nil {
		return fmt.Errorf("create publish_runs: %w", err)
	}
	return nil
}

func (s *PostgresSink) RecordPublish(ctx context.Context, run PublishRun) error {
	_, err := s.db.ExecContext(ctx, insertPublishRun,
		run.RunID,
		run.RecordID,
		run.TemplateName,
		run.Mode,
		nullable(run.ProjectID),
		nullable(run.ProjectURL),
		run.ProjectCreated,
		run.CategoriesCreated,
		run.FieldsCreated,
		run.Outcome,
		nullable(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert publish run: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
