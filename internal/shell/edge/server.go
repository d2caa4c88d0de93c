// Package edge implements the edge HTTP server that routes incoming
// requests to stack containers based on hostname.
package edge

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	coreedge "github.com/artpar/stackd/internal/core/edge"
	"github.com/artpar/stackd/internal/shell/store"
	"github.com/gorilla/mux"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Config holds edge server configuration.
type Config struct {
	Address      string        // Listen address, e.g., "0.0.0.0:8443"
	BaseDomain   string        // Base domain for stacks, e.g., "stacks.example.com"
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
	IdleTimeout  time.Duration // HTTP idle timeout
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Address:      "0.0.0.0:8081",
		BaseDomain:   "stacks.localhost",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server is the HTTP server that routes requests to stacks.
type Server struct {
	store   store.Store
	parser  coreedge.HostnameParser
	logger  *slog.Logger
	config  Config
	errTmpl *template.Template
}

// NewServer creates a new edge server.
func NewServer(cfg Config, s store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	errTmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		store:   s,
		parser:  coreedge.HostnameParser{BaseDomain: cfg.BaseDomain},
		logger:  logger,
		config:  cfg,
		errTmpl: errTmpl,
	}, nil
}

// Router returns the edge router.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet).Host(s.config.BaseDomain)
	r.PathPrefix("/").HandlerFunc(s.serveProxy)
	return r
}

// Start starts the edge server (non-blocking).
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		s.logger.Info("starting edge server",
			"address", s.config.Address,
			"base_domain", s.config.BaseDomain,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("edge server error", "error", err)
		}
	}()

	return srv
}

// serveProxy resolves the request hostname to a stack and proxies to it.
func (s *Server) serveProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hostname := coreedge.StripPort(r.Host)

	s.logger.Debug("edge request",
		"hostname", hostname,
		"path", r.URL.Path,
		"method", r.Method,
	)

	target, err := s.resolveTarget(ctx, hostname)
	if err != nil {
		var edgeErr coreedge.EdgeError
		if errors.As(err, &edgeErr) {
			s.serveError(w, edgeErr)
			return
		}
		s.logger.Error("failed to resolve target", "hostname", hostname, "error", err)
		s.serveError(w, coreedge.NewUnavailableError(hostname))
		return
	}

	if !target.CanRoute() {
		s.serveError(w, coreedge.NewStoppedError(hostname))
		return
	}

	upstream, err := url.Parse("http://" + target.Address())
	if err != nil {
		s.logger.Error("failed to build upstream URL", "hostname", hostname, "error", err)
		s.serveError(w, coreedge.NewUnavailableError(hostname))
		return
	}

	s.proxyRequest(w, r, upstream, target)
}

// resolveTarget looks up the stack for a hostname: base-domain slugs first,
// then registered custom hostnames.
func (s *Server) resolveTarget(ctx context.Context, hostname string) (coreedge.Target, error) {
	if slug, ok := s.parser.Parse(hostname); ok {
		stk, err := s.store.GetStackBySlug(ctx, slug)
		if err == nil {
			return coreedge.Target{
				StackID: stk.ID,
				Port:    stk.EdgePort,
				Status:  string(stk.Status),
			}, nil
		}
		if !isNotFound(err) {
			return coreedge.Target{}, err
		}
	}

	stk, err := s.store.GetStackByHostname(ctx, hostname)
	if err != nil {
		if isNotFound(err) {
			return coreedge.Target{}, coreedge.NewNotFoundError(hostname)
		}
		return coreedge.Target{}, err
	}

	return coreedge.Target{
		StackID: stk.ID,
		Port:    stk.EdgePort,
		Status:  string(stk.Status),
	}, nil
}

func (s *Server) proxyRequest(w http.ResponseWriter, r *http.Request, upstream *url.URL, target coreedge.Target) {
	reverseProxy := httputil.NewSingleHostReverseProxy(upstream)

	originalDirector := reverseProxy.Director
	reverseProxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Header.Set("X-Forwarded-Host", r.Host)
		req.Header.Set("X-Real-IP", getRealIP(r))
		req.Header.Set("X-Stack-ID", target.StackID)
	}

	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error("upstream error",
			"hostname", r.Host,
			"stack_id", target.StackID,
			"error", err,
		)
		s.serveError(w, coreedge.NewUpstreamError(r.Host))
	}

	reverseProxy.ServeHTTP(w, r)
}

func (s *Server) serveError(w http.ResponseWriter, err coreedge.EdgeError) {
	s.logger.Warn("edge error",
		"type", err.Type,
		"hostname", err.Hostname,
		"status", err.StatusCode,
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(err.StatusCode)

	var tmplName string
	switch err.Type {
	case coreedge.ErrorNotFound:
		tmplName = "not_found.html"
	case coreedge.ErrorStopped:
		tmplName = "stopped.html"
	case coreedge.ErrorUpstream:
		tmplName = "upstream.html"
	default:
		tmplName = "unavailable.html"
	}

	data := map[string]any{
		"Hostname": err.Hostname,
		"Message":  err.Message,
	}

	if execErr := s.errTmpl.ExecuteTemplate(w, tmplName, data); execErr != nil {
		s.logger.Error("failed to execute error template", "error", execErr)
		http.Error(w, err.Message, err.StatusCode)
	}
}

// getRealIP extracts the real client IP from the request.
func getRealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the chain
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	return r.RemoteAddr
}

// HealthResponse is the JSON response for the /healthz endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	StacksRoutable int    `json:"stacks_routable"`
	BaseDomain     string `json:"base_domain"`
}

// serveHealth reports edge health and the number of routable stacks.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountRoutableStacks(r.Context())
	if err != nil {
		s.logger.Error("failed to count routable stacks", "error", err)
		count = 0
	}

	resp := HealthResponse{
		Status:         "ok",
		StacksRoutable: count,
		BaseDomain:     s.config.BaseDomain,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// isNotFound checks if an error is a store not-found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
