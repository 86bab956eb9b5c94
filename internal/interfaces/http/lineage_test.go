package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tradepipeline/internal/application/service/lineage"
	"tradepipeline/internal/domain/entity/pipeline"
	"tradepipeline/internal/domain/entity/tracelog"
	"tradepipeline/internal/infrastructure/records"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecords(t *testing.T, recs ...tracelog.Record) string {
	t.Helper()
	var buf []byte
	for _, rec := range recs {
		var err error
		buf, err = rec.AppendLine(buf)
		require.NoError(t, err)
	}
	path := filepath.Join(t.TempDir(), "pipeline.log")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func newLineageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewLineageHandler(lineageService(t), nil, 0, nil))
	t.Cleanup(srv.Close)
	return srv
}

func lineageService(t *testing.T) *lineage.Service {
	t.Helper()
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	path := writeRecords(t,
		tracelog.Record{
			Timestamp: base,
			Level:     tracelog.LevelInfo,
			Service:   "intake_service",
			TraceID:   "trace-a",
			Message:   "Trade created successfully",
			Extra:     map[string]any{"trade_id": "T-1", "endpoint": "/trades", "method": "POST"},
		},
		tracelog.Record{
			Timestamp: base.Add(time.Millisecond),
			Level:     tracelog.LevelError,
			Service:   "pricing_service",
			TraceID:   "trace-a",
			Message:   "Price computation timed out",
			Extra:     map[string]any{"trade_id": "T-1", "error": "timeout"},
		},
		tracelog.Record{
			Timestamp: base.Add(time.Second),
			Level:     tracelog.LevelInfo,
			Service:   "intake_service",
			TraceID:   "trace-b",
			Message:   "Trade created successfully",
			Extra:     map[string]any{"trade_id": "T-2", "endpoint": "/trades", "method": "POST"},
		},
	)
	source, err := records.NewFileSource(path)
	require.NoError(t, err)
	return lineage.NewService(source, source)
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func (f *fakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value, ok := f.values[key]; ok {
		return redis.NewStringResult(value, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]string)
		f.ttls = make(map[string]time.Duration)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.values))
	for key := range f.values {
		out = append(out, key)
	}
	return out
}

func TestLineageCachesSettledChainsOnly(t *testing.T) {
	cache := &fakeCache{}
	srv := httptest.NewServer(newLineageHandler(lineageService(t), cache, 30*time.Second, nil))
	t.Cleanup(srv.Close)

	for _, path := range []string{"/api/v1/traces/trace-b", "/api/v1/traces?trade_id=T-1", "/api/v1/traces/trace-missing"} {
		res, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		res.Body.Close()
	}
	assert.Empty(t, cache.keys(), "running chains, lists and errors are not cached")

	res, err := http.Get(srv.URL + "/api/v1/traces/trace-a")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	key := "cache:GET:/api/v1/traces/trace-a?"
	assert.Equal(t, []string{key}, cache.keys())
	assert.Equal(t, 30*time.Second, cache.ttls[key])
	assert.Contains(t, cache.values[key], `"state":"FAILED_AT_PRICING"`)
}

func TestLineageTraceStatus(t *testing.T) {
	srv := newLineageServer(t)

	res, err := http.Get(srv.URL + "/api/v1/traces/trace-a")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var status tracelog.ChainStatus
	require.NoError(t, json.NewDecoder(res.Body).Decode(&status))
	assert.Equal(t, "trace-a", status.TraceID)
	assert.Equal(t, "T-1", status.TradeID)
	assert.Equal(t, tracelog.FailedAt(pipeline.StagePricing), status.State)
	require.NotNil(t, status.Failure)
	assert.Equal(t, pipeline.KindTimeout, status.Failure.Kind)
	assert.Len(t, status.Stages, 2)
}

func TestLineageUnknownTrace(t *testing.T) {
	srv := newLineageServer(t)

	res, err := http.Get(srv.URL + "/api/v1/traces/trace-missing")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, lineage.ErrTraceNotFound.Error(), body["error"])
}

func TestLineageListTraces(t *testing.T) {
	srv := newLineageServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		traces []string
	}{
		{name: "known trade", query: "?trade_id=T-1", status: http.StatusOK, traces: []string{"trace-a"}},
		{name: "unknown trade", query: "?trade_id=T-9", status: http.StatusOK, traces: []string{}},
		{name: "missing trade id", query: "", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := http.Get(srv.URL + "/api/v1/traces" + tt.query)
			require.NoError(t, err)
			defer res.Body.Close()
			require.Equal(t, tt.status, res.StatusCode)
			if tt.traces == nil {
				return
			}
			var body struct {
				TraceIDs []string `json:"trace_ids"`
			}
			require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
			assert.Equal(t, tt.traces, body.TraceIDs)
		})
	}
}
