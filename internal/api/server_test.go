package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticSource []StepStatus

func (s staticSource) StepStatuses() []StepStatus { return s }

func TestHealthz(t *testing.T) {
	srv := NewServer(":0", staticSource(nil), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsSteps(t *testing.T) {
	source := staticSource{
		{Step: "Crawler", Status: "completed", Succeeded: 120},
		{Step: "Scraper", Status: "running", Succeeded: 40, Pending: 80, Retries: 3},
	}
	srv := NewServer(":0", source, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Steps []StepStatus `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Steps, 2)
	assert.Equal(t, "Scraper", payload.Steps[1].Step)
	assert.Equal(t, 3, payload.Steps[1].Retries)
}

func TestStatusEmptyPipeline(t *testing.T) {
	srv := NewServer(":0", staticSource(nil), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"steps":[]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(":0", staticSource(nil), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
