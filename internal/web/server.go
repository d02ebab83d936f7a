// Package web provides the HTTP command and status server.
package web

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Server owns the HTTP listener lifecycle.
type Server struct {
	httpServer *http.Server
}

// New creates a Server for the given handler (usually Handler.InitRoutes).
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// RegisterOnShutdown runs f when Shutdown starts; used to close hijacked
// connections that Shutdown does not track.
func (s *Server) RegisterOnShutdown(f func()) {
	s.httpServer.RegisterOnShutdown(f)
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests (and therefore in-flight pulses) to complete. Websocket streams
// are closed only through RegisterOnShutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
