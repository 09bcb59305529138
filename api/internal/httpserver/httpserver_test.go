package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-auditor/api/internal/pipeline"
	"video-auditor/api/internal/scoring"
	"video-auditor/api/internal/video"
)

func newTestServer() *Server {
	coord := pipeline.NewCoordinator(&pipeline.Pipeline{}, 3)
	return New(coord, video.NewResolver("testdata"))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReviewMatchesEngine(t *testing.T) {
	srv := newTestServer()
	lvl := scoring.Level(2)
	req := reviewRequest{
		Objective: scoring.ObjectiveFlags{
			PureCalcBias:       2,
			CriticalErrorCount: 1,
			LogicFlow:          "formula_before_concept",
		},
		Subjective: scoring.SubjectiveFlags{
			PacingMismatch:      1,
			VisualAccessibility: &lvl,
			MonotoneAudio:       2,
		},
	}

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/v1/review", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// the endpoint must be a pure view over the scoring engine
	assert.Equal(t, scoring.ComputeAccuracy(req.Objective).Score, resp.Accuracy.Score)
	assert.Equal(t, scoring.ComputeLogic(req.Objective).Score, resp.Logic.Score)
	assert.Equal(t, scoring.ComputeAdaptability(req.Subjective).Score, resp.Adaptability.Score)
	assert.Equal(t, scoring.ComputeEngagement(req.Subjective).Score, resp.Engagement.Score)
	assert.InDelta(t,
		resp.Accuracy.Score*0.4+resp.Logic.Score*0.3+resp.Adaptability.Score*0.2+resp.Engagement.Score*0.1,
		resp.Weighted, 1e-9)
}

func TestReviewToleratesMessyFlags(t *testing.T) {
	srv := newTestServer()
	raw := `{"objective_flags": {"formula_dumping": true, "brevity": "3", "critical_error_count": 2.9},
		"subjective_flags": {"monotone_audio": "severe"}}`

	req := httptest.NewRequest(http.MethodPost, "/v1/review", bytes.NewBufferString(raw))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// formula_dumping true -> level 2 (1.0), brevity "3" -> 3.0 + cap 2.0,
	// critical 2.9 -> 2 occurrences (1.0); total hits the 1.0 floor
	assert.Equal(t, 1.0, resp.Accuracy.Score)
	assert.Equal(t, 5.0, resp.Engagement.Score, "junk severity scores as absent")
}

func TestReviewRejectsNonPost(t *testing.T) {
	srv := newTestServer()
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/v1/review", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitValidation(t *testing.T) {
	srv := newTestServer()

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/v1/audit", submitRequest{Persona: "p"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "video_url")

	rec = doJSON(t, srv.Routes(), http.MethodPost, "/v1/audit", submitRequest{VideoURL: "https://example.com/v"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "persona")

	req := httptest.NewRequest(http.MethodPost, "/v1/audit", bytes.NewBufferString("{nope"))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobLookup(t *testing.T) {
	srv := newTestServer()

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/v1/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// seed a job directly; the handler must return a consistent snapshot
	srv.mu.Lock()
	srv.jobs["abc"] = &Job{ID: "abc", Status: StatusRunning}
	srv.mu.Unlock()

	rec = doJSON(t, srv.Routes(), http.MethodGet, "/v1/jobs/abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var j Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &j))
	assert.Equal(t, StatusRunning, j.Status)
}

func TestStatus(t *testing.T) {
	srv := newTestServer()
	srv.mu.Lock()
	srv.jobs["a"] = &Job{ID: "a", Status: StatusRunning}
	srv.jobs["b"] = &Job{ID: "b", Status: StatusCompleted}
	srv.jobs["c"] = &Job{ID: "c", Status: StatusQueued}
	srv.mu.Unlock()

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2", body["active_jobs"])
	assert.Equal(t, "3", body["total_jobs"])
	assert.Equal(t, "3", body["max_concurrent"])
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
