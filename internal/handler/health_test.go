package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingOK() HealthChecker {
	return HealthCheckerFunc(func(context.Context) error { return nil })
}

func pingErr(msg string) HealthChecker {
	return HealthCheckerFunc(func(context.Context) error { return errors.New(msg) })
}

func probe(t *testing.T, serve http.HandlerFunc, path string) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	serve(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(pingErr("down"), nil, nil)

	code, resp := probe(t, h.Healthz, "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHealthHandler_Readyz(t *testing.T) {
	tests := []struct {
		name       string
		db, cache  HealthChecker
		kafka      HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name: "all healthy", db: pingOK(), cache: pingOK(), kafka: pingOK(),
			wantCode: http.StatusOK, wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "kafka": "ok"},
		},
		{
			name: "kafka disabled", db: pingOK(), cache: pingOK(),
			wantCode: http.StatusOK, wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "kafka": "not configured"},
		},
		{
			name: "postgres down", db: pingErr("connection refused"), cache: pingOK(),
			wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy",
			wantChecks: map[string]string{"postgres": "error: connection refused", "redis": "ok", "kafka": "not configured"},
		},
		{
			name: "brokers unreachable", db: pingOK(), cache: pingOK(), kafka: pingErr("no brokers reachable"),
			wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "kafka": "error: no brokers reachable"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.cache, tt.kafka)

			code, resp := probe(t, h.Readyz, "/readyz")

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestHealthHandler_ReadyzHonorsDeadline(t *testing.T) {
	slow := HealthCheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h := NewHealthHandler(pingOK(), pingOK(), slow)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
