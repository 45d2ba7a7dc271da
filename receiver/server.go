package receiver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/prilive-com/tgwire/tg"
)

// WebhookServer owns the listener that receives pushed updates.
// Open and Close are idempotent.
type WebhookServer struct {
	dispatch UpdateFunc
	logger   *slog.Logger
	opts     []WebhookOption

	mu        sync.Mutex
	srv       *http.Server
	serveDone chan struct{}
	draining  *http.Server // listener closed, in-flight requests pending
	addr      atomic.Pointer[net.Addr]
	open      atomic.Bool
}

// NewWebhookServer creates a closed server.
func NewWebhookServer(dispatch UpdateFunc, logger *slog.Logger, opts ...WebhookOption) *WebhookServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookServer{
		dispatch: dispatch,
		logger:   logger,
		opts:     opts,
	}
}

// Open validates cfg, loads TLS material, binds the listener and starts
// serving. Configuration and TLS failures are *tg.ConfigError and happen
// before any socket is bound. Open on an open server is a no-op. If an
// earlier Close gave up before its requests drained, Open first waits for
// them, bounded by ctx.
func (s *WebhookServer) Open(ctx context.Context, cfg WebhookConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open.Load() {
		return nil
	}
	if err := s.finishDrain(ctx); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	tlsConfig, err := loadTLSConfig(cfg)
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return err
	}
	addr := ln.Addr()
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	srv := &http.Server{
		Handler:           s.routes(cfg),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("webhook server failed", "error", err)
		}
	}()

	s.srv = srv
	s.serveDone = done
	s.addr.Store(&addr)
	s.open.Store(true)

	s.logger.Info("webhook listening",
		"addr", addr.String(),
		"tls", tlsConfig != nil,
		"health_path", cfg.HealthPath,
	)
	return nil
}

// Close stops accepting connections and waits for in-flight requests to
// finish. Active connections are never cut; ctx bounds the wait.
//
// The server reports closed as soon as the listener stops accepting. When
// ctx expires first, the ctx error is returned and a later Close (or Open)
// resumes waiting for the remaining requests.
func (s *WebhookServer) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open.Load() {
		s.draining = s.srv
		s.srv = nil
		s.open.Store(false)
	}
	return s.finishDrain(ctx)
}

func (s *WebhookServer) finishDrain(ctx context.Context) error {
	if s.draining == nil {
		return nil
	}
	if err := s.draining.Shutdown(ctx); err != nil {
		s.logger.Warn("webhook drain incomplete", "error", err)
		return err
	}
	<-s.serveDone

	s.draining = nil
	s.logger.Info("webhook closed")
	return nil
}

// IsOpen reports whether the listener is serving.
func (s *WebhookServer) IsOpen() bool {
	return s.open.Load()
}

// Addr returns the bound address, or nil when closed.
func (s *WebhookServer) Addr() net.Addr {
	if !s.open.Load() {
		return nil
	}
	if p := s.addr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *WebhookServer) routes(cfg WebhookConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.HandleFunc(cfg.HealthPath, HealthHandler())
	r.Handle("/*", NewWebhookHandler(s.logger, s.dispatch, cfg, s.opts...))
	return r
}

// loadTLSConfig reads the PEM pair or PKCS#12 bundle named by cfg.
// It returns nil when TLS is not configured.
func loadTLSConfig(cfg WebhookConfig) (*tls.Config, error) {
	var cert tls.Certificate

	switch {
	case cfg.PfxPath != "":
		data, err := os.ReadFile(cfg.PfxPath)
		if err != nil {
			return nil, tg.WrapConfigError("PfxPath", "cannot read PKCS#12 bundle", errors.Join(ErrTLSMaterial, err))
		}
		key, leaf, chain, err := pkcs12.DecodeChain(data, cfg.PfxPassphrase.Value())
		if err != nil {
			return nil, tg.WrapConfigError("PfxPath", "cannot decode PKCS#12 bundle", errors.Join(ErrTLSMaterial, err))
		}
		cert = tls.Certificate{
			Certificate: certChain(leaf, chain),
			PrivateKey:  key,
			Leaf:        leaf,
		}

	case cfg.CertPath != "":
		var err error
		cert, err = tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, tg.WrapConfigError("CertPath", "cannot load certificate/key pair", errors.Join(ErrTLSMaterial, err))
		}

	default:
		return nil, nil
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func certChain(leaf *x509.Certificate, chain []*x509.Certificate) [][]byte {
	out := [][]byte{leaf.Raw}
	for _, c := range chain {
		out = append(out, c.Raw)
	}
	return out
}
