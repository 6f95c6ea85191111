package service

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the default prometheus registry on /metrics
type MetricsServer struct {
	server *httpServer
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server, err := serve(addr, mux, log.Root())
	if err != nil {
		return err
	}
	m.server = server
	return nil
}

// Addr returns the bound address, or "" when the server is not running
func (m *MetricsServer) Addr() string {
	return m.server.addr()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.shutdown(ctx)
}
