package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func decodeReadiness(t *testing.T, body []byte) readinessReport {
	t.Helper()
	var report readinessReport
	require.NoError(t, json.Unmarshal(body, &report))
	return report
}

func TestDependencyRoutes(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		checks     []HealthCheck
		wantStatus int
		wantReady  bool
		wantDeps   map[string]dependencyStatus
	}{
		{
			name:       "startup all healthy",
			path:       "/health/startup",
			checks:     []HealthCheck{{Name: "postgres", Check: healthOK}, {Name: "redis", Check: healthOK}},
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantDeps:   map[string]dependencyStatus{"postgres": {OK: true}, "redis": {OK: true}},
		},
		{
			name:       "startup postgres down",
			path:       "/health/startup",
			checks:     []HealthCheck{{Name: "postgres", Check: healthErr("connection refused")}, {Name: "redis", Check: healthOK}},
			wantStatus: http.StatusServiceUnavailable,
			wantDeps:   map[string]dependencyStatus{"postgres": {Error: "connection refused"}, "redis": {OK: true}},
		},
		{
			name:       "ready with both down reports both",
			path:       "/health/ready",
			checks:     []HealthCheck{{Name: "postgres", Check: healthErr("timeout")}, {Name: "redis", Check: healthErr("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantDeps:   map[string]dependencyStatus{"postgres": {Error: "timeout"}, "redis": {Error: "connection refused"}},
		},
		{
			name:       "ready without checks",
			path:       "/health/ready",
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantDeps:   map[string]dependencyStatus{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, newTestDeps(), withHealthChecks(tt.checks...))

			rec := do(srv, http.MethodGet, tt.path, "", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			report := decodeReadiness(t, rec.Body.Bytes())
			assert.Equal(t, tt.wantReady, report.Ready)
			assert.Equal(t, tt.wantDeps, report.Dependencies)
		})
	}
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, newTestDeps())

	rec := do(srv, http.MethodGet, "/health/live", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var report livenessReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Alive)
	assert.GreaterOrEqual(t, report.UptimeSeconds, 0.0)
	assert.Equal(t, 3, report.Connections)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, newTestDeps())

	rec := do(srv, http.MethodGet, "/version", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}
