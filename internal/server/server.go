package server

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/casedash/casedash/internal/api"
	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/credentials"
	"github.com/casedash/casedash/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// SessionStore is the part of credentials.Store the server drives.
type SessionStore interface {
	Ready() <-chan struct{}
	Credentials() credentials.Credentials
	Login(accessToken, refreshToken string) error
	Logout() error
}

// Authenticator exchanges user credentials for a token pair.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.TokenPair, error)
}

// Upstream sends requests to the backend API through the gateway pipeline.
type Upstream interface {
	URL(path string, query url.Values) string
	Do(req *http.Request) (*http.Response, error)
}

type Deps struct {
	Store    SessionStore
	Auth     Authenticator
	Upstream Upstream
	API      *api.Service
	Metrics  *metrics.Metrics

	AdminAPIKey string
	// ExpiryBuffer marks a session as needing refresh soon in /session/status.
	ExpiryBuffer time.Duration
}

type Server struct {
	store    SessionStore
	auth     Authenticator
	upstream Upstream
	api      *api.Service
	metrics  *metrics.Metrics

	adminAPIKey  string
	expiryBuffer time.Duration

	router chi.Router
	logger zerolog.Logger
}

func New(logger zerolog.Logger, deps Deps) *Server {
	if deps.ExpiryBuffer <= 0 {
		deps.ExpiryBuffer = auth.DefaultExpiryBuffer
	}
	s := &Server{
		store:        deps.Store,
		auth:         deps.Auth,
		upstream:     deps.Upstream,
		api:          deps.API,
		metrics:      deps.Metrics,
		adminAPIKey:  deps.AdminAPIKey,
		expiryBuffer: deps.ExpiryBuffer,
		router:       chi.NewRouter(),
		logger:       logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer, s.loggingMiddleware)

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.waitReady)

		r.Post("/session/login", s.loginHandler)
		r.Post("/session/logout", s.logoutHandler)
		r.Get("/session/status", s.statusHandler)
		r.With(s.adminMiddleware).Post("/admin/credentials", s.credentialsHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.HandleFunc("/api/*", s.proxyHandler)

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/cases", s.listCasesHandler)
				r.Get("/cases/{id}", s.getCaseHandler)
				r.Get("/accused/{id}", s.getAccusedHandler)
				r.Get("/conviction-rates", s.convictionRatesHandler)
				r.Get("/personnel", s.personnelHandler)
				r.Get("/geo", s.geoHandler)
				r.Get("/chargesheet-sankey", s.sankeyHandler)
				r.Get("/trends", s.trendsHandler)
				r.Post("/chat", s.chatHandler)
			})
		})
	})

	r.NotFound(s.notFoundHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

// waitReady holds requests until the persisted session has been restored.
func (s *Server) waitReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-s.store.Ready():
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session_restoring"})
		}
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.store.Credentials().IsAuthenticated {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated", "redirect": loginRedirect})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("Unhandled route")
	http.NotFound(w, r)
}
