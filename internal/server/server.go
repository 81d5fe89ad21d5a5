// Package server implements the HTTP server that receives CloudMailin
// webhook notifications and relays them through a Notifier.
package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/notify"
)

// Config holds the configuration for an HTTP server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string

	// Notifier is the delivery backend for formatted messages.
	Notifier notify.Notifier

	// Username and Password are the basic-auth credentials required on
	// the webhook endpoint. If either is empty, authentication is not
	// enforced; main rejects half-configured pairs before the server
	// is built.
	Username string
	Password string

	// TLSConfig enables HTTPS serving when non-nil.
	TLSConfig *tls.Config
}

// Server accepts CloudMailin notifications over HTTP and delegates
// delivery to the configured Notifier.
type Server struct {
	router   *chi.Mux
	srv      *http.Server
	notifier notify.Notifier
	auth     *Authenticator
}

// New creates a Server with the given configuration.
func New(cfg Config) *Server {
	router := chi.NewMux()
	s := &Server{
		router: router,
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           router,
			TLSConfig:         cfg.TLSConfig,
			ReadHeaderTimeout: 10 * time.Second,
		},
		notifier: cfg.Notifier,
		auth:     NewAuthenticator(cfg.Username, cfg.Password),
	}
	s.addRoutes()

	return s
}

func (s *Server) addRoutes() {
	s.router.Get("/health", s.getHealth)
	s.router.Post("/webhooks/cloudmailin", s.requireAuth(s.postWebhook))
}

// Handler returns the HTTP handler, used for testing with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server and blocks until it is shut down.
func (s *Server) Start() error {
	if s.srv.TLSConfig != nil {
		return s.srv.ListenAndServeTLS("", "")
	}
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// up to the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requireAuth rejects the request with 401 before any body handling unless
// valid basic-auth credentials are presented. With auth disabled it passes
// every request through.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth.Enabled() {
			username, password, ok := r.BasicAuth()
			if !ok || !s.auth.Verify(username, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="cloudmailin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
