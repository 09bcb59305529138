// Package httpserver exposes audit submission over HTTP. Jobs run in the
// background under the same admission limiter as batch runs and are looked
// up by id until the process exits.
package httpserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"video-auditor/api/internal/audit"
	"video-auditor/api/internal/pipeline"
	"video-auditor/api/internal/scoring"
	"video-auditor/api/internal/video"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Job struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	Unit      audit.Unit    `json:"unit"`
	Result    *audit.Result `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type Server struct {
	Coord    *pipeline.Coordinator
	Resolver *video.Resolver

	mu        sync.Mutex
	jobs      map[string]*Job
	nextIndex int
}

func New(coord *pipeline.Coordinator, res *video.Resolver) *Server {
	return &Server{Coord: coord, Resolver: res, jobs: make(map[string]*Job)}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audit", s.submit)
	mux.HandleFunc("/v1/jobs/", s.job)
	mux.HandleFunc("/v1/review", s.review)
	mux.HandleFunc("/status", s.status)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) ListenAndServe(addr string) error {
	log.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, s.Routes())
}

type submitRequest struct {
	VideoURL string `json:"video_url"`
	Title    string `json:"title"`
	Persona  string `json:"persona"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "video_url is required"})
		return
	}
	if strings.TrimSpace(req.Persona) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "persona is required"})
		return
	}

	s.mu.Lock()
	s.nextIndex++
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		Unit: audit.Unit{
			Index:    s.nextIndex,
			VideoURL: req.VideoURL,
			Title:    audit.NormalizeTitle(req.Title),
			Persona:  req.Persona,
			Run:      1,
		},
	}
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.runJob(job)

	writeJSON(w, http.StatusAccepted, job)
}

// runJob resolves the media and runs the pipeline, moving the job through
// queued -> running -> completed/failed. The job survives the request; the
// submitting client polls /v1/jobs/{id}.
func (s *Server) runJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.update(job.ID, func(j *Job) {
				j.Status = StatusFailed
				j.Error = "panic during audit"
			})
			log.Printf("job %s: panic: %v", job.ID, r)
		}
	}()

	ctx := context.Background()
	s.update(job.ID, func(j *Job) { j.Status = StatusRunning })

	u := job.Unit
	id, path, err := s.Resolver.Resolve(ctx, u.VideoURL)
	if err != nil {
		s.update(job.ID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = "download: " + err.Error()
		})
		return
	}
	u.VideoID = id
	u.VideoPath = path

	res := s.Coord.RunOne(ctx, u)
	s.update(job.ID, func(j *Job) {
		j.Result = res
		if res.Success {
			j.Status = StatusCompleted
		} else {
			j.Status = StatusFailed
			j.Error = res.Err
		}
	})
}

func (s *Server) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	s.mu.Lock()
	j, ok := s.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *j
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type reviewRequest struct {
	Objective  scoring.ObjectiveFlags  `json:"objective_flags"`
	Subjective scoring.SubjectiveFlags `json:"subjective_flags"`
}

type reviewResponse struct {
	Accuracy     scoring.ScoreResult `json:"accuracy"`
	Logic        scoring.ScoreResult `json:"logic"`
	Adaptability scoring.ScoreResult `json:"adaptability"`
	Engagement   scoring.ScoreResult `json:"engagement"`
	Weighted     float64             `json:"weighted_total"`
}

// review scores a hand-filled flag set through the same engine the pipeline
// uses. Human reviewers and the models share one scale by construction.
func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
		return
	}
	resp := reviewResponse{
		Accuracy:     scoring.ComputeAccuracy(req.Objective),
		Logic:        scoring.ComputeLogic(req.Objective),
		Adaptability: scoring.ComputeAdaptability(req.Subjective),
		Engagement:   scoring.ComputeEngagement(req.Subjective),
	}
	resp.Weighted = resp.Accuracy.Score*0.4 + resp.Logic.Score*0.3 +
		resp.Adaptability.Score*0.2 + resp.Engagement.Score*0.1
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	total := len(s.jobs)
	var active int
	for _, j := range s.jobs {
		if j.Status == StatusQueued || j.Status == StatusRunning {
			active++
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"active_jobs":    strconv.Itoa(active),
		"total_jobs":     strconv.Itoa(total),
		"max_concurrent": strconv.FormatInt(s.Coord.MaxConcurrent(), 10),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
