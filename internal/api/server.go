package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/metrics"
)

// Backend is the store surface the API reads and annotates.
type Backend interface {
	bank.ProblemQuery
	bank.ExamNumberSetter
	Ping(ctx context.Context) error
}

// Config controls server behavior.
type Config struct {
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the store.
type Server struct {
	router  chi.Router
	backend Backend
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(backend Backend, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{backend: backend, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/problems", s.listProblemsByTheme)
		r.Route("/exam-numbers", func(r chi.Router) {
			r.Delete("/", s.clearExamNumber)
			r.Put("/{n}", s.setExamNumber)
			r.Get("/{n}/problems", s.listProblemsByExamNumber)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listProblemsByTheme(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gia, err := bank.ParseGiaType(q.Get("gia_type"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject := strings.TrimSpace(q.Get("subject"))
	theme := strings.TrimSpace(q.Get("theme"))
	if subject == "" || theme == "" {
		s.writeError(w, http.StatusBadRequest, "subject and theme are required")
		return
	}

	problems, err := s.backend.ProblemsByTheme(r.Context(), gia, subject, theme)
	if err != nil {
		s.internalError(w, "list problems by theme", err)
		return
	}
	s.writeJSON(w, http.StatusOK, problemsResponse{Problems: problems})
}

func (s *Server) listProblemsByExamNumber(w http.ResponseWriter, r *http.Request) {
	n, err := examNumberParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strip := false
	if raw := r.URL.Query().Get("strip_answer"); raw != "" {
		strip, err = strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "strip_answer must be a boolean")
			return
		}
	}

	problems, err := s.backend.ProblemsByExamNumber(r.Context(), n)
	if err != nil {
		s.internalError(w, "list problems by exam number", err)
		return
	}
	if strip {
		for i := range problems {
			cleaned, err := stripAnswer(problems[i].ConditionHTML)
			if err != nil {
				s.internalError(w, "strip answer", err)
				return
			}
			problems[i].ConditionHTML = cleaned
		}
	}
	s.writeJSON(w, http.StatusOK, problemsResponse{Problems: problems})
}

func (s *Server) setExamNumber(w http.ResponseWriter, r *http.Request) {
	n, err := examNumberParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeProblemIDs(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.backend.SetExamNumber(r.Context(), &n, req.ProblemIDs)
	if err != nil {
		s.internalError(w, "set exam number", err)
		return
	}
	s.logger.Info("exam number set", zap.Int("exam_number", n), zap.Int64("updated", updated))
	s.writeJSON(w, http.StatusOK, updateResponse{Updated: updated})
}

func (s *Server) clearExamNumber(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProblemIDs(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.backend.SetExamNumber(r.Context(), nil, req.ProblemIDs)
	if err != nil {
		s.internalError(w, "clear exam number", err)
		return
	}
	s.logger.Info("exam number cleared", zap.Int64("updated", updated))
	s.writeJSON(w, http.StatusOK, updateResponse{Updated: updated})
}

type problemsResponse struct {
	Problems []bank.StoredProblem `json:"problems"`
}

type problemIDsRequest struct {
	ProblemIDs []string `json:"problem_ids"`
}

type updateResponse struct {
	Updated int64 `json:"updated"`
}

func examNumberParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "n")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("exam number must be a positive integer, got %q", raw)
	}
	return n, nil
}

func decodeProblemIDs(r *http.Request) (problemIDsRequest, error) {
	var req problemIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.New("invalid JSON")
	}
	ids := make([]string, 0, len(req.ProblemIDs))
	for _, id := range req.ProblemIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return req, errors.New("problem_ids required")
	}
	req.ProblemIDs = ids
	return req, nil
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
