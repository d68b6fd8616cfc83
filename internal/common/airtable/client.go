package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"template-publisher/internal/common/errors"
	httpclient "template-publisher/internal/common/http"
	"template-publisher/internal/models"
)

const (
	ServiceName    = "airtable"
	DefaultBaseURL = "https://api.airtable.com/v0"
)

// listResponseSchema is the part of the list response the publisher relies on.
var listResponseSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["records"],
	"properties": {
		"records": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "string"},
					"fields": {"type": "object"}
				}
			}
		},
		"offset": {"type": "string"}
	}
}`)

// Client talks to one Airtable table.
type Client struct {
	http   *httpclient.Client
	baseID string
	table  string
}

func NewClient(baseURL, apiKey, baseID, table string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:   httpclient.NewClient(ServiceName, baseURL, apiKey, timeout),
		baseID: baseID,
		table:  table,
	}
}

type listResponse struct {
	Records []models.TemplateRecord `json:"records"`
	Offset  string                  `json:"offset,omitempty"`
}

// ListRecords returns records matching formula in store order. maxRecords
// caps the result when positive; otherwise every page is followed.
func (c *Client) ListRecords(ctx context.Context, formula string, maxRecords int) ([]models.TemplateRecord, error) {
	var (
		records []models.TemplateRecord
		offset  string
	)

	for {
		query := url.Values{}
		query.Set("filterByFormula", formula)
		if maxRecords > 0 {
			query.Set("maxRecords", strconv.Itoa(maxRecords))
		}
		if offset != "" {
			query.Set("offset", offset)
		}

		resp, err := c.http.Do(ctx, "list_records", http.MethodGet, c.tablePath()+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		page, err := decodeListResponse(resp.Body)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.Offset == "" || (maxRecords > 0 && len(records) >= maxRecords) {
			break
		}
		offset = page.Offset
	}

	if maxRecords > 0 && len(records) > maxRecords {
		records = records[:maxRecords]
	}
	return records, nil
}

func decodeListResponse(body []byte) (*listResponse, error) {
	result, err := gojsonschema.Validate(listResponseSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, errors.NewContractViolationError(ServiceName, fmt.Sprintf("list response is not valid JSON: %v", err), body)
	}
	if !result.Valid() {
		return nil, errors.NewContractViolationError(ServiceName, describe(result), body)
	}

	var page listResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, errors.NewContractViolationError(ServiceName, err.Error(), body)
	}
	return &page, nil
}

// RecordUpdate is one entry of a PATCH request.
type RecordUpdate struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type updateRequest struct {
	Records []RecordUpdate `json:"records"`
}

// UpdateRecords patches the given records in a single request.
func (c *Client) UpdateRecords(ctx context.Context, updates ...RecordUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	_, err := c.http.Do(ctx, "update_records", http.MethodPatch, c.tablePath(), updateRequest{Records: updates})
	return err
}

// SetStatus is a convenience wrapper patching a single record.
func (c *Client) SetStatus(ctx context.Context, recordID, status string) error {
	return c.UpdateRecords(ctx, RecordUpdate{
		ID:     recordID,
		Fields: map[string]interface{}{models.FieldStatus: status},
	})
}

func (c *Client) tablePath() string {
	return "/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(c.table)
}

// StatusFormula builds the filterByFormula expression selecting status.
func StatusFormula(status string) string {
	return fmt.Sprintf("%s='%s'", models.FieldStatus, status)
}

func describe(result *gojsonschema.Result) string {
	msg := "unexpected response shape:"
	for _, desc := range result.Errors() {
		msg += " " + desc.String() + ";"
	}
	return msg
}
