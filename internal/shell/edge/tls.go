package edge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// =============================================================================
// TLS Termination via ACME
// =============================================================================

// TLSConfig holds edge TLS configuration.
type TLSConfig struct {
	Enabled  bool
	Address  string // HTTPS listen address, e.g., "0.0.0.0:8443"
	CacheDir string // Certificate cache directory
	Email    string // ACME account email
}

// CertManager builds an ACME certificate manager for the edge server.
// Certificates are issued for base-domain subdomains and for every custom
// hostname registered on a stack; everything else is refused so the ACME
// account never hits rate limits for junk hostnames.
func (s *Server) CertManager(cfg TLSConfig) *autocert.Manager {
	return &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(cfg.CacheDir),
		Email:  cfg.Email,
		HostPolicy: func(ctx context.Context, host string) error {
			if host == s.config.BaseDomain || strings.HasSuffix(host, "."+s.config.BaseDomain) {
				return nil
			}
			if _, err := s.store.GetStackByHostname(ctx, host); err == nil {
				return nil
			}
			return fmt.Errorf("hostname %q is not served here", host)
		},
	}
}

// StartTLS starts the edge server with ACME TLS termination (non-blocking).
// The returned plain-HTTP server answers ACME HTTP-01 challenges and
// redirects everything else to HTTPS.
func (s *Server) StartTLS(cfg TLSConfig) (*http.Server, *http.Server) {
	manager := s.CertManager(cfg)

	httpsSrv := &http.Server{
		Addr:    cfg.Address,
		Handler: s.Router(),
		TLSConfig: &tls.Config{
			GetCertificate: manager.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		},
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	httpSrv := &http.Server{
		Addr:         s.config.Address,
		Handler:      manager.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		s.logger.Info("starting edge server with TLS",
			"address", cfg.Address,
			"base_domain", s.config.BaseDomain,
			"cache_dir", cfg.CacheDir,
		)
		if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("edge TLS server error", "error", err)
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("edge challenge server error", "error", err)
		}
	}()

	return httpsSrv, httpSrv
}

// redirectHTTPS sends plain-HTTP traffic to the HTTPS listener.
func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
