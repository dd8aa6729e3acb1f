package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/artifact"
	"github.com/JakeFAU/site-screenshot-crawler/internal/config"
	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/metrics"
)

// Jobs accepts queued work and cancels it. *dispatcher.Dispatcher satisfies it.
type Jobs interface {
	Enqueue(ctx context.Context, item crawler.QueueItem) error
	Cancel(jobID string) bool
}

// DomainList is the persisted bulk domain list. *domains.Store satisfies it.
type DomainList interface {
	List() ([]string, error)
	Add(domains ...string) ([]string, error)
	Remove(domain string) error
	Rename(oldName, newName string) error
}

// LogTailer returns the last lines of the audit log. *audit.Sink satisfies it.
type LogTailer interface {
	Tail(n int) ([]string, error)
}

// Screenshots browses stored images. *artifact.Store satisfies it.
type Screenshots interface {
	Root() string
	Find(filter artifact.Filter) ([]artifact.Entry, error)
	Gallery() ([]artifact.GalleryDir, error)
}

// Dependencies are the collaborators behind the handlers. Domains, Logs and
// Screens may be nil, which disables their routes.
type Dependencies struct {
	JobStore crawler.JobStore
	Jobs     Jobs
	IDs      crawler.IDGenerator
	Clock    crawler.Clock
	Domains  DomainList
	Logs     LogTailer
	Screens  Screenshots
	// Ready reports whether downstream dependencies are usable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router chi.Router
	deps   Dependencies
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/v1", func(r chi.Router) {
			r.Route("/captures", func(r chi.Router) {
				r.Post("/", s.submitCapture)
				r.Post("/bulk", s.submitBulk)
				r.Route("/{job_id}", func(r chi.Router) {
					r.Get("/", s.getCapture)
					r.Post("/cancel", s.cancelCapture)
				})
			})
			if deps.Domains != nil {
				r.Route("/domains", func(r chi.Router) {
					r.Get("/", s.listDomains)
					r.Post("/", s.addDomains)
					r.Put("/{domain}", s.renameDomain)
					r.Delete("/{domain}", s.removeDomain)
				})
			}
			if deps.Logs != nil {
				r.Get("/logs", s.tailLogs)
			}
			if deps.Screens != nil {
				r.Get("/screenshots", s.findScreenshots)
				r.Get("/gallery", s.gallery)
			}
		})
		if deps.Screens != nil {
			files := http.StripPrefix("/screenshots/", http.FileServer(http.Dir(deps.Screens.Root())))
			r.Handle("/screenshots/*", files)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
