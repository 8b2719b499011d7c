// Package server exposes the packet parser over HTTP, WebSocket and,
// optionally, HTTP/3.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/rs/zerolog"

	"wrpl-inspect/internal/config"
	"wrpl-inspect/internal/metrics"
)

// Server is the parse service.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	router   chi.Router
	h3       *http3.Server
}

// New creates a Server. A nil m uses the process-wide collectors.
func New(cfg config.Config, log zerolog.Logger, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     log.With().Str("component", "server").Logger(),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
		},
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the service.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(s.altSvc)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	r.Route("/v1/parse", func(r chi.Router) {
		r.Post("/", s.handleParse)
		r.Get("/ws", s.handleParseWS)
	})
	return r
}

// observe records request metrics under the matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
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

// altSvc advertises the HTTP/3 listener on TCP responses.
func (s *Server) altSvc(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.h3 != nil && r.ProtoMajor < 3 {
			if err := s.h3.SetQUICHeaders(w.Header()); err != nil {
				s.log.Debug().Err(err).Msg("alt-svc header")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	if s.cfg.Server.HTTP3Addr != "" {
		tlsConf, err := s.tlsConfig()
		if err != nil {
			return err
		}
		s.h3 = &http3.Server{
			Addr:      s.cfg.Server.HTTP3Addr,
			Handler:   s.router,
			TLSConfig: http3.ConfigureTLSConfig(tlsConf),
			QUICConfig: &quic.Config{
				MaxIdleTimeout: 60 * time.Second,
			},
		}
		go func() {
			s.log.Info().Str("addr", s.cfg.Server.HTTP3Addr).Msg("http3 listening")
			errc <- s.h3.ListenAndServe()
		}()
	}
	go func() {
		s.log.Info().Str("addr", s.cfg.Server.Addr).Msg("http listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.shutdown(srv)
			return err
		}
	}
	s.shutdown(srv)
	return nil
}

func (s *Server) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
	}
	if s.h3 != nil {
		if err := s.h3.Close(); err != nil {
			s.log.Warn().Err(err).Msg("http3 shutdown")
		}
	}
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.cfg.Server.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.CertFile, s.cfg.Server.KeyFile)
		if err != nil {
			return nil, err
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	s.log.Warn().Msg("no cert_file configured, using a self-signed certificate")
	return selfSignedTLS([]string{"localhost"})
}
