package service

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

type HealthzServer struct {
	log    log.Logger
	server *httpServer
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server, err := serve(addr, c.Handler(hdlr), h.logger())
	if err != nil {
		return err
	}
	h.server = server
	return nil
}

// Addr returns the bound address, or "" when the server is not running
func (h *HealthzServer) Addr() string {
	return h.server.addr()
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	return h.server.shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.logger().Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) logger() log.Logger {
	if h.log == nil {
		return log.Root()
	}
	return h.log
}
