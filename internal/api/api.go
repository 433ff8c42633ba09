// Package api serves the qualifier over HTTP: health, metrics, feedback
// intake, case file and run listings, on-demand qualification runs and
// calibration passes.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/calibrate"
	"github.com/sells-group/lead-qualifier/internal/metrics"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/qualify"
	"github.com/sells-group/lead-qualifier/internal/scoring"
	"github.com/sells-group/lead-qualifier/internal/store"
)

const (
	defaultLeadLimit = 50
	defaultRunLimit  = 20
	maxLimit         = 500
)

// Store is the persistence the API reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	SaveFeedback(ctx context.Context, caseID string, grade model.Grade) (*model.FeedbackGrade, error)
	ListCaseFiles(ctx context.Context, filter store.CaseFilter) ([]model.CaseFile, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Runner starts qualification runs.
type Runner interface {
	Begin(ctx context.Context, mode model.Mode) (*model.Run, func(context.Context) (*qualify.Report, error), error)
}

// Calibrator runs calibration passes.
type Calibrator interface {
	Run(ctx context.Context, force bool) (*calibrate.Result, error)
}

// Server holds the HTTP handlers.
type Server struct {
	store   Store
	runner  Runner
	calib   Calibrator
	metrics *metrics.Manager
	mode    model.Mode
	secret  string
	origins []string
	base    context.Context
	log     *zap.Logger
	runs    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithRunner enables POST /qualify.
func WithRunner(r Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithCalibrator enables POST /calibrate.
func WithCalibrator(c Calibrator) Option {
	return func(s *Server) { s.calib = c }
}

// WithMetrics enables GET /metrics and request instrumentation.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMode sets the default rendering mode of /leads.
func WithMode(m model.Mode) Option {
	return func(s *Server) { s.mode = m }
}

// WithSecret requires "Authorization: Bearer <secret>" on every route but
// /health and /metrics.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = secret }
}

// WithAllowedOrigins sets the CORS allow list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithBaseContext sets the context background runs derive from. Cancelling
// it stops them.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.base = ctx }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server.
func New(st Store, opts ...Option) *Server {
	s := &Server{
		store:   st,
		mode:    model.ModeProduction,
		origins: []string{"*"},
		base:    context.Background(),
		log:     zap.L(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Wait blocks until background runs started by POST /qualify return.
func (s *Server) Wait() {
	s.runs.Wait()
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/feedback", s.feedback)
		r.Get("/leads", s.leads)
		r.Get("/runs", s.listRuns)
		r.Post("/qualify", s.qualify)
		r.Post("/calibrate", s.calibrate)
	})
	return r
}

// observe records request counts and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(route, r.Method, status, time.Since(start))
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	grade, err := model.ParseGrade(r.URL.Query().Get("grade"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "grade must be Relevant, Partial or Irrelevant")
		return
	}

	fb, err := s.store.SaveFeedback(r.Context(), id, grade)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "case file not found")
		return
	}
	if err != nil {
		s.log.Error("api: save feedback", zap.String("case_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save feedback")
		return
	}
	s.metrics.ObserveFeedback(grade)
	s.log.Info("api: feedback recorded",
		zap.String("case_id", id),
		zap.String("grade", string(grade)),
		zap.String("source_type", fb.SourceType),
	)
	writeJSON(w, http.StatusOK, fb)
}

// lead is a case file as served by /leads. The pointer fields shadow the
// embedded ones so production rendering can omit them.
type lead struct {
	model.CaseFile
	Scores           *model.Scores `json:"scores,omitempty"`
	Confidence       *float64      `json:"confidence,omitempty"`
	Boost            *float64      `json:"corroboration_boost,omitempty"`
	Reasoning        string        `json:"reasoning,omitempty"`
	QualityScore     *int          `json:"quality_score,omitempty"`
	SituationSummary string        `json:"situation_analysis,omitempty"`
	Rationale        string        `json:"strategic_rationale,omitempty"`
}

func render(cf model.CaseFile, mode model.Mode) lead {
	l := lead{CaseFile: cf}
	if mode == model.ModeTest {
		scores, conf, boost := cf.Scores, cf.Confidence, cf.Boost
		l.Scores = &scores
		l.Confidence = &conf
		l.Boost = &boost
		l.Reasoning = cf.Reasoning
		l.QualityScore = cf.QualityScore
		l.SituationSummary = cf.SituationSummary
		l.Rationale = cf.Rationale
	}
	return l
}

func (s *Server) leads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), defaultLeadLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := model.CaseStatus(q.Get("status"))
	switch status {
	case "":
		status = model.CaseStatusQualified
	case "all":
		status = ""
	case model.CaseStatusQualified, model.CaseStatusDropped:
	default:
		writeError(w, http.StatusBadRequest, "status must be qualified, dropped or all")
		return
	}
	mode := s.mode
	if m := q.Get("mode"); m != "" {
		mode = model.ParseMode(m)
	}

	cfs, err := s.store.ListCaseFiles(r.Context(), store.CaseFilter{Status: status, RunID: q.Get("run_id"), Limit: limit})
	if err != nil {
		s.log.Error("api: list case files", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list leads")
		return
	}
	out := make([]lead, len(cfs))
	for i, cf := range cfs {
		out[i] = render(cf, mode)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) qualify(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "qualification is not enabled on this server")
		return
	}
	mode := model.ParseMode(r.URL.Query().Get("mode"))

	run, exec, err := s.runner.Begin(r.Context(), mode)
	if errors.Is(err, scoring.ErrLocked) {
		writeError(w, http.StatusConflict, "a qualification or calibration run is in progress")
		return
	}
	if err != nil {
		s.log.Error("api: start run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start run")
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		rep, err := exec(s.base)
		if err != nil {
			s.log.Error("api: qualification run failed", zap.String("run_id", run.ID), zap.Error(err))
			return
		}
		s.log.Info("api: qualification run complete",
			zap.String("run_id", run.ID),
			zap.String("status", string(rep.Run.Status)),
			zap.Int("qualified", rep.Run.Qualified),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": run.ID,
		"mode":   string(mode),
	})
}

func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	if s.calib == nil {
		writeError(w, http.StatusServiceUnavailable, "calibration is not enabled on this server")
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	res, err := s.calib.Run(r.Context(), force)
	if errors.Is(err, scoring.ErrLocked) {
		writeError(w, http.StatusConflict, "a qualification or calibration run is in progress")
		return
	}
	if err != nil {
		s.log.Error("api: calibrate", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "calibration failed")
		return
	}
	for _, ch := range res.Changes {
		s.metrics.ObserveCalibration(ch.SourceType, ch.Action)
	}
	writeJSON(w, http.StatusOK, res)
}

func parseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
