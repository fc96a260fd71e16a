package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"mentorsync/internal/model"
)

const (
	testBase  = "appBase"
	testTable = "tblMentors"
	testToken = "pat-secret"
)

// fakeCRM keeps records in memory and applies PATCH as a field merge.
type fakeCRM struct {
	mu        sync.Mutex
	records   map[string]map[string]any
	seq       int
	requests  []string
	failBatch int // fail the n-th batch request (1-based), 0 = never
	batches   int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{records: map[string]map[string]any{}}
}

func (f *fakeCRM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"AUTHENTICATION_REQUIRED"}`))
		return
	}

	tablePath := fmt.Sprintf("/v0/%s/%s", testBase, testTable)
	recordID := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, tablePath), "/")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == tablePath:
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.seq++
		id := fmt.Sprintf("rec%03d", f.seq)
		f.records[id] = body.Fields
		writeJSON(w, map[string]any{"id": id, "fields": body.Fields})

	case r.Method == http.MethodPatch && r.URL.Path == tablePath:
		f.batches++
		if f.failBatch == f.batches {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"type":"INVALID_RECORDS","message":"too many records"}}`))
			return
		}
		var body struct {
			Records []Record `json:"records"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		out := make([]Record, 0, len(body.Records))
		for _, rec := range body.Records {
			existing := f.records[rec.ID]
			if existing == nil {
				existing = map[string]any{}
			}
			for k, v := range rec.Fields {
				existing[k] = v
			}
			f.records[rec.ID] = existing
			out = append(out, Record{ID: rec.ID, Fields: existing})
		}
		writeJSON(w, map[string]any{"records": out})

	case r.Method == http.MethodPatch && recordID != "":
		existing, ok := f.records[recordID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
			return
		}
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for k, v := range body.Fields {
			existing[k] = v
		}
		writeJSON(w, map[string]any{"id": recordID, "fields": existing})

	case r.Method == http.MethodGet && recordID != "":
		existing, ok := f.records[recordID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
			return
		}
		writeJSON(w, map[string]any{"id": recordID, "fields": existing})

	case r.Method == http.MethodDelete && recordID != "":
		delete(f.records, recordID)
		writeJSON(w, map[string]any{"id": recordID, "deleted": true})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithLimiter(rate.NewLimiter(rate.Inf, 1))}, opts...)

	c, err := New(Config{
		BaseURL:   srv.URL,
		BaseID:    testBase,
		APIToken:  testToken,
		BatchSize: 10,
	}, opts...)
	require.NoError(t, err)

	return c
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{BaseID: testBase, APIToken: "  "})
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestUpsertCreatesWithoutID(t *testing.T) {
	fake := newFakeCRM()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv)

	id, err := c.Upsert(context.Background(), testTable, "", model.ExternalFields{"Headline": "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "rec001", id)
	assert.Equal(t, []string{"POST /v0/appBase/tblMentors"}, fake.requests)
}

func TestUpsertPartialUpdateKeepsOmittedFields(t *testing.T) {
	fake := newFakeCRM()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	id, err := c.Upsert(ctx, testTable, "", model.ExternalFields{"Headline": "Old", "Bio": "Keep me"})
	require.NoError(t, err)

	sameID, err := c.Upsert(ctx, testTable, id, model.ExternalFields{"Headline": "New"})
	require.NoError(t, err)
	assert.Equal(t, id, sameID)

	rec, err := c.GetRecord(ctx, testTable, id)
	require.NoError(t, err)
	assert.Equal(t, "New", rec.Fields["Headline"])
	assert.Equal(t, "Keep me", rec.Fields["Bio"])
}

func TestUpsertUnknownRecordIsAPIError(t *testing.T) {
	srv := httptest.NewServer(newFakeCRM())
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.Upsert(context.Background(), testTable, "recMissing", model.ExternalFields{"Headline": "x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "NOT_FOUND", apiErr.Type)
}

func TestBadTokenIsAPIError(t *testing.T) {
	srv := httptest.NewServer(newFakeCRM())
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, BaseID: testBase, APIToken: "wrong"}, WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	require.NoError(t, err)

	_, err = c.Upsert(context.Background(), testTable, "", model.ExternalFields{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestBatchUpdateChunks(t *testing.T) {
	fake := newFakeCRM()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv)

	records := make([]Record, 23)
	for i := range records {
		records[i] = Record{ID: fmt.Sprintf("rec%03d", i), Fields: model.ExternalFields{"Active": true}}
	}

	out, err := c.BatchUpdate(context.Background(), testTable, records)
	require.NoError(t, err)
	assert.Len(t, out, 23)
	assert.Equal(t, 3, fake.batches)
}

func TestBatchUpdateAbortsOnChunkFailure(t *testing.T) {
	fake := newFakeCRM()
	fake.failBatch = 2
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv)

	records := make([]Record, 25)
	for i := range records {
		records[i] = Record{ID: fmt.Sprintf("rec%03d", i), Fields: model.ExternalFields{"Active": false}}
	}

	out, err := c.BatchUpdate(context.Background(), testTable, records)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 10, batchErr.Offset)
	assert.Len(t, batchErr.Committed, 10)
	assert.Len(t, out, 10)
	assert.Equal(t, 2, fake.batches, "no chunk after the failing one is sent")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_RECORDS", apiErr.Type)
	assert.Equal(t, "too many records", apiErr.Message)
}

func TestDeleteRecord(t *testing.T) {
	fake := newFakeCRM()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	id, err := c.Upsert(ctx, testTable, "", model.ExternalFields{"Headline": "bye"})
	require.NoError(t, err)

	require.NoError(t, c.DeleteRecord(ctx, testTable, id))

	_, err = c.GetRecord(ctx, testTable, id)
	require.Error(t, err)
}

func TestRequestsAreSpacedByLimiter(t *testing.T) {
	srv := httptest.NewServer(newFakeCRM())
	defer srv.Close()

	const interval = 40 * time.Millisecond

	c := newTestClient(t, srv, WithLimiter(rate.NewLimiter(rate.Every(interval), 1)))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.Upsert(ctx, testTable, "", model.ExternalFields{"Headline": "x"})
		require.NoError(t, err)
	}

	// first request passes immediately, the next three wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 3*interval-5*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(newFakeCRM())
	defer srv.Close()

	c := newTestClient(t, srv, WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := c.Upsert(context.Background(), testTable, "", model.ExternalFields{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Upsert(ctx, testTable, "", model.ExternalFields{})
	require.Error(t, err)
}
