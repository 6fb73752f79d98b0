package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/nwp-forecast-service/internal/adapter/http"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStatus struct {
	err  error
	last domain.Run
}

func (m *mockStatus) CheckReadiness(_ context.Context) error { return m.err }

func (m *mockStatus) LastRun() domain.Run { return m.last }

func get(t *testing.T, srv *httpadapter.Server, path string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]string
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthzReturns200(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockStatus{err: errors.New("store unreachable")}, slog.Default())

	rec, body := get(t, srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code, "liveness does not depend on the store")
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	run, err := domain.ParseRun("2024050106")
	require.NoError(t, err)

	tests := []struct {
		name    string
		status  *mockStatus
		code    int
		want    string
		lastRun string
		errText string
	}{
		{name: "imported by this process", status: &mockStatus{last: run}, code: http.StatusOK, want: "ready", lastRun: "2024050106"},
		{name: "populated by an earlier process", status: &mockStatus{}, code: http.StatusOK, want: "ready"},
		{name: "empty store", status: &mockStatus{err: errors.New("no run has been imported yet")}, code: http.StatusServiceUnavailable, want: "not ready", errText: "no run has been imported yet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httpadapter.NewServer(":0", tt.status, slog.Default())

			rec, body := get(t, srv, "/readyz")

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.want, body["status"])
			assert.Equal(t, tt.lastRun, body["last_run"])
			assert.Equal(t, tt.errText, body["error"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockStatus{}, slog.Default())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUnknownRoute(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockStatus{}, slog.Default())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
