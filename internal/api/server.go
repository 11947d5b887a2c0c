// Package api exposes assessments over HTTP: runs are submitted as
// asynchronous jobs and their results fetched once persisted.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/seca-gap/internal/api/middleware"
	"github.com/khanhnv2901/seca-gap/internal/application/assess"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/modules"
	"github.com/khanhnv2901/seca-gap/internal/orchestrator"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

const maxBodyBytes = 1 << 20

// AssessmentService runs and loads assessments.
type AssessmentService interface {
	Prepare(req assess.Request) ([]assessment.Target, []modules.Module, error)
	Run(ctx context.Context, req assess.Request) (*assess.Outcome, error)
	Load(ctx context.Context, runID string) (*assessment.BatchResult, error)
}

// ModuleCatalog lists the registered modules.
type ModuleCatalog interface {
	Descriptors() []modules.Descriptor
}

// AssessmentRequest is the body of POST /api/v1/assessments. Omitted
// fields fall back to the server defaults; depth_limit 0 is honoured.
type AssessmentRequest struct {
	Targets               []string `json:"targets"`
	Modules               []string `json:"modules,omitempty"`
	MaxWorkers            *int     `json:"max_workers,omitempty"`
	TimeoutPerUnitSeconds *int     `json:"timeout_per_unit_seconds,omitempty"`
	DepthLimit            *int     `json:"depth_limit,omitempty"`
	PageLimit             *int     `json:"page_limit,omitempty"`
	SkipBurst             bool     `json:"skip_burst,omitempty"`
}

type Config struct {
	Assessments AssessmentService
	Modules     ModuleCatalog
	Jobs        *JobManager
	// Defaults seeds the options of every submitted assessment.
	Defaults orchestrator.Options
	// BaseContext bounds background jobs; cancelling it stops them.
	BaseContext context.Context
	// AuthToken enables bearer authentication when set.
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // empty allows all
	RateLimit   int      // requests per second per client, 0 disables
	RateBurst   int
}

type Server struct {
	cfg      Config
	router   chi.Router
	limiters *rateLimiterMap
	running  sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Jobs == nil {
		cfg.Jobs = NewJobManager(0)
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = cfg.RateLimit
	}
	srv := &Server{cfg: cfg, limiters: newRateLimiterMap()}
	srv.router = srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until every background job has finished.
func (s *Server) Wait() { s.running.Wait() }

// Jobs exposes the job manager.
func (s *Server) Jobs() *JobManager { return s.cfg.Jobs }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, s.withLogging, chimw.Recoverer, s.withRateLimit, s.withCORS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Group(func(r chi.Router) {
			r.Use(s.withAuth)
			r.Get("/modules", s.handleModules)
			r.Post("/assessments", s.handleCreateAssessment)
			r.Get("/jobs", s.handleJobs)
			r.Get("/jobs/{id}", s.handleJobByID)
			r.Get("/jobs-stream", s.handleJobStream)
			r.Get("/runs/{id}", s.handleRun)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(s.methodNotAllowed)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Modules == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("module catalog not available"))
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Modules.Descriptors())
}

func (s *Server) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Assessments == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("assessment service not available"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body AssessmentRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	req := s.buildRequest(body)
	targets, mods, err := s.cfg.Assessments.Prepare(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	job := s.cfg.Jobs.CreateJob(body.Targets, body.Modules)
	req.Options.RunID = job.RunID
	total := len(targets) * len(mods)
	s.cfg.Jobs.UpdateJob(job.ID, func(j *Job) { j.Total = total })
	job.Total = total

	s.requestLogger(r).Info("assessment_submitted",
		zap.String("job_id", job.ID),
		zap.Int("targets", len(targets)),
		zap.Int("modules", len(mods)))

	s.running.Add(1)
	go s.runJob(job.ID, req)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) buildRequest(body AssessmentRequest) assess.Request {
	opts := s.cfg.Defaults
	opts.Progress = nil
	if body.MaxWorkers != nil {
		opts.MaxWorkers = *body.MaxWorkers
	}
	if body.TimeoutPerUnitSeconds != nil {
		opts.TimeoutPerUnit = time.Duration(*body.TimeoutPerUnitSeconds) * time.Second
	}
	if body.DepthLimit != nil {
		opts.Run.Discovery.DepthLimit = *body.DepthLimit
	}
	if body.PageLimit != nil {
		opts.Run.Discovery.PageLimit = *body.PageLimit
	}
	if body.SkipBurst {
		opts.Run.SkipBurst = true
	}
	return assess.Request{Command: "serve", Targets: body.Targets, Modules: body.Modules, Options: opts}
}

func (s *Server) runJob(id string, req assess.Request) {
	defer s.running.Done()
	logger := s.cfg.Logger.With(zap.String("job_id", id))

	started := time.Now().UTC()
	s.cfg.Jobs.UpdateJob(id, func(j *Job) {
		j.Status = JobRunning
		j.StartedAt = &started
	})
	req.Options.Progress = func(ev orchestrator.Event) {
		if ev.Type != orchestrator.UnitFinished {
			return
		}
		s.cfg.Jobs.UpdateJob(id, func(j *Job) {
			j.Completed++
			j.Total = ev.Total
		})
	}

	out, err := s.cfg.Assessments.Run(s.cfg.BaseContext, req)
	finished := time.Now().UTC()
	s.cfg.Jobs.UpdateJob(id, func(j *Job) {
		j.FinishedAt = &finished
		if out != nil && out.Batch != nil {
			summary := out.Batch.OverallSummary
			j.Summary = &summary
			j.BatchPath = out.BatchPath
		}
		if err != nil {
			j.Status = JobError
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
	})
	if err != nil {
		logger.Error("assessment job failed", zap.Error(err))
		return
	}
	logger.Info("assessment job finished", zap.Duration("elapsed", finished.Sub(started)))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if q := r.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.cfg.Jobs.ListJobs(limit))
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	job, ok := s.cfg.Jobs.GetJob(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, errors.New("job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Assessments == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("assessment service not available"))
		return
	}
	batch, err := s.cfg.Assessments.Load(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, batch)
	case errors.Is(err, sharedErrors.ErrRunNotFound), errors.Is(err, sharedErrors.ErrInvalidInput):
		s.writeError(w, r, http.StatusNotFound, errors.New("run not found"))
	default:
		s.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	updates, unsubscribe := s.cfg.Jobs.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	ctx := r.Context()
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(job)
			if err != nil {
				s.cfg.Logger.Error("failed to marshal job", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, []byte("event: job\ndata: ")) ||
				!s.writeStreamChunk(w, payload) ||
				!s.writeStreamChunk(w, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		client := clientKey(r)
		if !s.limiters.getLimiter(client, s.cfg.RateLimit, s.cfg.RateBurst).Allow() {
			s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client", client))
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller: the first X-Forwarded-For hop when
// present, the remote host otherwise.
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowed := range s.cfg.CORSOrigins {
				if allowed == origin {
					allowOrigin = origin
					break
				}
			}
		}
		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		s.cfg.Logger.Info("http_request",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", lrw.bytesWritten),
		)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		// Use constant-time comparison to prevent timing attacks
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.cfg.AuthToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="seca-gap"`)
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

// Flush keeps server-sent events working through the wrapper.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	// 5xx details stay in the server log.
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error", zap.Error(err), zap.Int("status", status))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	logger := s.cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		s.cfg.Logger.Error("failed to write stream chunk", zap.Error(err))
		return false
	}
	return true
}

// rateLimiterMap holds one limiter per client. Idle limiters are pruned
// lazily on access.
type rateLimiterMap struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	lastPrune time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 5 * time.Minute

func newRateLimiterMap() *rateLimiterMap {
	return &rateLimiterMap{limiters: make(map[string]*clientLimiter), lastPrune: time.Now()}
}

func (m *rateLimiterMap) getLimiter(client string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if now.Sub(m.lastPrune) > time.Minute {
		for key, l := range m.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(m.limiters, key)
			}
		}
		m.lastPrune = now
	}
	l, ok := m.limiters[client]
	if !ok {
		l = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[client] = l
	}
	l.lastSeen = now
	return l.limiter
}
