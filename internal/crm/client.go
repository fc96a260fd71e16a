// Package crm is the HTTP client for the operations CRM (an Airtable-style
// REST API). Every request passes through one rate limiter owned by the
// client instance.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
)

const (
	DefaultBaseURL            = "https://api.airtable.com"
	DefaultMinRequestInterval = 200 * time.Millisecond
	DefaultBatchSize          = 10
	DefaultRequestTimeout     = 30 * time.Second

	maxErrorBody = 4 << 10
)

var ErrMissingToken = apperrors.ErrMissingToken

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("crm api error: status=%d type=%s message=%s", e.StatusCode, e.Type, e.Message)
	}

	return fmt.Sprintf("crm api error: status=%d message=%s", e.StatusCode, e.Message)
}

// BatchError reports a chunk failure. Records from the chunks that went
// through before the failure are in Committed, so a caller can resume from
// Offset.
type BatchError struct {
	Offset    int
	Committed []Record
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch update failed at record %d (%d committed): %v", e.Offset, len(e.Committed), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

type Record struct {
	ID     string               `json:"id,omitempty"`
	Fields model.ExternalFields `json:"fields"`
}

type Config struct {
	BaseURL            string
	BaseID             string
	APIToken           string
	MinRequestInterval time.Duration
	BatchSize          int
	RequestTimeout     time.Duration
}

type Option func(*Client)

// WithLimiter replaces the default limiter, e.g. to share one across clients
// or to disable spacing in tests.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

type Client struct {
	baseURL    string
	baseID     string
	token      string
	batchSize  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New fails when no token is configured; a sync attempt without credentials
// must never degrade into a silent no-op.
func New(cfg Config, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return nil, ErrMissingToken
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	interval := cfg.MinRequestInterval
	if interval <= 0 {
		interval = DefaultMinRequestInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Client{
		baseURL:    baseURL,
		baseID:     cfg.BaseID,
		token:      token,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Upsert creates a record when recordID is empty and returns the new id.
// Otherwise it patches only the supplied fields of the existing record.
func (c *Client) Upsert(ctx context.Context, tableID, recordID string, fields model.ExternalFields) (string, error) {
	if recordID == "" {
		var created Record
		body := map[string]any{"fields": fields, "typecast": true}

		if err := c.do(ctx, http.MethodPost, c.tablePath(tableID), body, &created); err != nil {
			return "", fmt.Errorf("failed to create record: %w", err)
		}

		if created.ID == "" {
			return "", errors.New("failed to create record: response has no id")
		}

		return created.ID, nil
	}

	var updated Record
	body := map[string]any{"fields": fields, "typecast": true}

	if err := c.do(ctx, http.MethodPatch, c.recordPath(tableID, recordID), body, &updated); err != nil {
		return "", fmt.Errorf("failed to update record %s: %w", recordID, err)
	}

	return recordID, nil
}

// BatchUpdate patches records in sequential chunks of the configured size.
func (c *Client) BatchUpdate(ctx context.Context, tableID string, records []Record) ([]Record, error) {
	out := make([]Record, 0, len(records))

	for start := 0; start < len(records); start += c.batchSize {
		end := min(start+c.batchSize, len(records))

		var resp struct {
			Records []Record `json:"records"`
		}

		body := map[string]any{"records": records[start:end], "typecast": true}

		if err := c.do(ctx, http.MethodPatch, c.tablePath(tableID), body, &resp); err != nil {
			return out, &BatchError{Offset: start, Committed: out, Err: err}
		}

		out = append(out, resp.Records...)
	}

	return out, nil
}

func (c *Client) GetRecord(ctx context.Context, tableID, recordID string) (*Record, error) {
	var rec Record

	if err := c.do(ctx, http.MethodGet, c.recordPath(tableID, recordID), nil, &rec); err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", recordID, err)
	}

	return &rec, nil
}

func (c *Client) DeleteRecord(ctx context.Context, tableID, recordID string) error {
	if err := c.do(ctx, http.MethodDelete, c.recordPath(tableID, recordID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", recordID, err)
	}

	return nil
}

func (c *Client) tablePath(tableID string) string {
	return fmt.Sprintf("/v0/%s/%s", url.PathEscape(c.baseID), url.PathEscape(tableID))
}

func (c *Client) recordPath(tableID, recordID string) string {
	return c.tablePath(tableID) + "/" + url.PathEscape(recordID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}

	// the API sends either {"error": "CODE"} or {"error": {"type": ..., "message": ...}}
	var parsed struct {
		Error json.RawMessage `json:"error"`
	}

	if json.Unmarshal(raw, &parsed) != nil || len(parsed.Error) == 0 {
		return apiErr
	}

	var detailed struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}

	if json.Unmarshal(parsed.Error, &detailed) == nil {
		apiErr.Type = detailed.Type
		if detailed.Message != "" {
			apiErr.Message = detailed.Message
		}

		return apiErr
	}

	var code string
	if json.Unmarshal(parsed.Error, &code) == nil {
		apiErr.Type = code
	}

	return apiErr
}
