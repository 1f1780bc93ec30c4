package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"confprog/internal/accounts"
	"confprog/internal/auth"
	"confprog/internal/bookmark"
	"confprog/internal/config"
	appLog "confprog/internal/log"
	"confprog/internal/metrics"
	"confprog/internal/schedule"
	"confprog/internal/source"
)

// AccountStore is the persistence the account endpoints need.
type AccountStore interface {
	Create(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) (*accounts.User, error)
	Get(ctx context.Context, username string) (*accounts.User, error)
	SaveProgram(ctx context.Context, username string, snap bookmark.Snapshot) error
}

// Server serves the program, the filter views and the account API.
type Server struct {
	cfg      *config.Config
	catalog  *source.Catalog
	accounts AccountStore
	tokens   *auth.Issuer
	metrics  *metrics.Collector
	builder  *schedule.Builder
	validate *validator.Validate

	router chi.Router
}

// embeddedStatic holds the browser front-end.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server. m may be nil to disable metrics.
func NewServer(cfg *config.Config, catalog *source.Catalog, store AccountStore, tokens *auth.Issuer, m *metrics.Collector) *Server {
	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		accounts: store,
		tokens:   tokens,
		metrics:  m,
		builder: schedule.NewBuilder(
			schedule.NewMatcher(cfg.Filters.ExactMatchDays),
			schedule.Types{Talk: cfg.Types.Talk, Poster: cfg.Types.Poster},
		),
		validate: validator.New(),
		router:   chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(appLog.Logger()))
	if s.metrics != nil {
		r.Use(s.observe)
	}

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get("/program.json", s.handleProgram)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/me", s.requireLogin(s.handleMe))
		r.Post("/save_program", s.requireLogin(s.handleSaveProgram))

		r.Get("/filters", s.handleFilters)
		r.Get("/schedule", s.handleSchedule)
		r.Get("/persons", s.handlePersons)
		r.Get("/program.ics", s.handleCalendar)

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "Nicht gefunden.")
		})
	})

	r.Handle("/*", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded front-end from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// observe records request counts and latency per route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(r.Method, route, status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	type msgResp struct {
		Message string `json:"message"`
	}
	writeJSON(w, status, msgResp{Message: msg})
}

// decodeJSON reads a JSON request body of at most 1 MiB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
