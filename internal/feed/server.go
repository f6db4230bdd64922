package feed

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"firestige.xyz/netcarve/internal/config"
	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/log"
)

// Server exposes a Hub over HTTP.
type Server struct {
	addr   string
	path   string
	hub    *Hub
	server *http.Server
	bound  net.Addr
}

// NewServer creates a feed server from configuration.
func NewServer(cfg config.FeedConfig) *Server {
	path := cfg.Path
	if path == "" {
		path = "/ws"
	}
	return &Server{
		addr: cfg.Listen,
		path: path,
		hub:  NewHub(cfg.ClientBuffer),
	}
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, s.hub)

	// No write timeout: websocket connections are long-lived.
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("feed server listen %s: %w", s.addr, err)
	}
	s.bound = ln.Addr()

	log.GetLogger().WithFields(map[string]interface{}{
		"addr": s.bound.String(),
		"path": s.path,
	}).Info("starting feed server")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.GetLogger().WithError(err).Error("feed server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	return s.bound
}

// Forward publishes every packet from in and sends them on to the returned
// channel, which closes when in does.
func (s *Server) Forward(in <-chan core.CapturedPacket) <-chan core.CapturedPacket {
	out := make(chan core.CapturedPacket, cap(in))
	go func() {
		defer close(out)
		for pkt := range in {
			s.hub.Publish(&pkt)
			out <- pkt
		}
	}()
	return out
}

// Stop disconnects clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("feed server shutdown failed: %w", err)
	}

	log.GetLogger().Info("feed server stopped")
	return nil
}
