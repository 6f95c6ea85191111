package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-suite/metrics"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8080
)

// Config selects which of the auxiliary HTTP servers run
type Config struct {
	HealthzEnabled bool
	HealthzAddr    string
	HealthzPort    int
	Metrics        opmetrics.CLIConfig
}

// Service runs the healthz and metrics servers next to the test runs
type Service struct {
	log     log.Logger
	cfg     Config
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(lgr log.Logger, cfg Config) *Service {
	return &Service{
		log:     lgr,
		cfg:     cfg,
		Healthz: &HealthzServer{log: lgr},
		Metrics: &MetricsServer{},
	}
}

// Start binds every enabled server and serves them in the background
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	if s.cfg.HealthzEnabled {
		addr := net.JoinHostPort(s.cfg.HealthzAddr, strconv.Itoa(s.cfg.HealthzPort))
		if err := s.Healthz.Start(ctx, addr); err != nil {
			metrics.RecordErrorDetails("error starting healthz server", err)
			return fmt.Errorf("failed to start healthz server: %w", err)
		}
		s.log.Info("started healthz server", "addr", s.Healthz.Addr())
	}

	if s.cfg.Metrics.Enabled {
		addr := net.JoinHostPort(s.cfg.Metrics.ListenAddr, strconv.Itoa(s.cfg.Metrics.ListenPort))
		if err := s.Metrics.Start(ctx, addr); err != nil {
			metrics.RecordErrorDetails("error starting metrics server", err)
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		s.log.Info("started metrics server", "addr", s.Metrics.Addr())
	}

	s.log.Info("service started")
	return nil
}

// Shutdown stops every running server
func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")
	err := errors.Join(s.Healthz.Shutdown(ctx), s.Metrics.Shutdown(ctx))
	s.log.Info("service stopped")
	return err
}

// httpServer is a listener bound before serving starts, so callers learn about address
// conflicts immediately
type httpServer struct {
	server   *http.Server
	listener net.Listener
}

func serve(addr string, handler http.Handler, lgr log.Logger) (*httpServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h := &httpServer{
		server:   &http.Server{Handler: handler},
		listener: listener,
	}
	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("http server failed", "addr", listener.Addr(), "err", err)
			metrics.RecordErrorDetails("http server failed", err)
		}
	}()
	return h, nil
}

func (h *httpServer) addr() string {
	if h == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *httpServer) shutdown(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
