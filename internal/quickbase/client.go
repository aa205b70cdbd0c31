package quickbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.quickbase.com/v1"
	userAgent      = "NSI-Order-Submission/1.0"

	// Lookup-style calls abort after this long. Write calls deliberately run
	// on the caller's context alone; see DeleteRecords/CreateRecords.
	readTimeout = 30 * time.Second
)

// Client is a thin wrapper over the QuickBase records API. Authentication is
// two static headers attached to every call; the client holds no other state.
type Client struct {
	baseURL       string
	realmHostname string
	userToken     string
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewClient creates a QuickBase client for one realm/token pair.
func NewClient(realmHostname, userToken string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:       defaultBaseURL,
		realmHostname: realmHostname,
		userToken:     userToken,
		httpClient:    &http.Client{},
		logger:        logger,
	}
}

// WithBaseURL overrides the API endpoint. Tests point this at a local fake.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// Field is one column's metadata as returned by GET /fields.
type Field struct {
	ID         int            `json:"id"`
	Label      string         `json:"label"`
	FieldType  string         `json:"fieldType"`
	BaseType   string         `json:"baseType"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Record maps field id to the value cell QuickBase returns.
type Record map[string]struct {
	Value any `json:"value"`
}

// ValueOf returns the cell value for a field id, nil when absent.
func (r Record) ValueOf(fieldID int) any {
	cell, ok := r[fmt.Sprintf("%d", fieldID)]
	if !ok {
		return nil
	}
	return cell.Value
}

// QueryRequest is the POST /records/query body.
type QueryRequest struct {
	From   string `json:"from"`
	Select []int  `json:"select"`
	Where  string `json:"where,omitempty"`
}

// QueryResult is the subset of the query response the portal uses.
type QueryResult struct {
	Data     []Record `json:"data"`
	Metadata struct {
		TotalRecords int `json:"totalRecords"`
	} `json:"metadata"`
}

// CreateResult is the subset of the POST /records response the portal uses.
type CreateResult struct {
	Data     []Record `json:"data"`
	Metadata struct {
		CreatedRecordIDs []int `json:"createdRecordIds"`
	} `json:"metadata"`
}

// ListFields fetches the field metadata for a table. Read path: carries the
// 30-second abort.
func (c *Client) ListFields(ctx context.Context, tableID string) ([]Field, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	endpoint := c.baseURL + "/fields?tableId=" + url.QueryEscape(tableID)
	var fields []Field
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &fields); err != nil {
		return nil, err
	}
	c.logger.Debug("listed table fields",
		zap.String("table_id", tableID),
		zap.Int("count", len(fields)),
	)
	return fields, nil
}

// QueryRecords runs a server-side filtered query. Read path: carries the
// 30-second abort.
func (c *Client) QueryRecords(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var result QueryResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/records/query", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordPayload is one row for CreateRecords, keyed by numeric field id.
type RecordPayload map[int]any

// CreateRecords inserts rows into a table and asks QuickBase to echo the
// given field ids back. Null values are stripped from each row before encode.
// No extra timeout beyond the caller's context.
func (c *Client) CreateRecords(ctx context.Context, tableID string, rows []RecordPayload, fieldsToReturn []int) (*CreateResult, error) {
	type cell struct {
		Value any `json:"value"`
	}
	data := make([]map[string]cell, 0, len(rows))
	for _, row := range rows {
		encoded := make(map[string]cell, len(row))
		for fieldID, value := range row {
			if value == nil {
				continue
			}
			encoded[fmt.Sprintf("%d", fieldID)] = cell{Value: value}
		}
		data = append(data, encoded)
	}

	body := map[string]any{
		"to":             tableID,
		"data":           data,
		"fieldsToReturn": fieldsToReturn,
	}

	var result CreateResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/records", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteRecords removes the rows matching the where clause and returns the
// number deleted. Used by the saga cleanup for orphaned headers.
func (c *Client) DeleteRecords(ctx context.Context, tableID, where string) (int, error) {
	body := map[string]any{
		"from":  tableID,
		"where": where,
	}
	var result struct {
		NumberDeleted int `json:"numberDeleted"`
	}
	if err := c.do(ctx, http.MethodDelete, c.baseURL+"/records", body, &result); err != nil {
		return 0, err
	}
	return result.NumberDeleted, nil
}

// do executes one authenticated call and decodes the response into result.
// Non-2xx statuses become UpstreamError with a best-effort parsed body.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("QB-Realm-Hostname", c.realmHostname)
	req.Header.Set("Authorization", "QB-USER-TOKEN "+c.userToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{URL: endpoint}
		}
		return &NetworkError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{URL: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newUpstreamError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// newUpstreamError parses the error body as JSON when possible and falls back
// to the raw text otherwise.
func newUpstreamError(status int, body []byte) *UpstreamError {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		message, _ := parsed["message"].(string)
		if message == "" {
			message, _ = parsed["error"].(string)
		}
		if message == "" {
			message = string(body)
		}
		return &UpstreamError{StatusCode: status, Message: message, Body: parsed}
	}
	text := string(body)
	if len(text) > 500 {
		text = text[:500]
	}
	if text == "" {
		text = "Unknown error"
	}
	return &UpstreamError{StatusCode: status, Message: text}
}
