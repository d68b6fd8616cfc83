package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "template-validation-reports"

// ElasticsearchSink indexes one document per validated record, keyed by run
// and record so a re-delivered report overwrites itself.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) RecordValidation(ctx context.Context, report ValidationReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal validation report: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: report.RunID + ":" + report.RecordID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index validation report: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index validation report: %s: %s", res.Status(), msg)
	}
	return nil
}
