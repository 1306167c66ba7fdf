// Package control exposes the daemon over a local unix socket.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control/mw"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control/routes"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// Server serves the control API on a unix domain socket.
type Server struct {
	http   *http.Server
	socket string
	logger logger.Logger
}

// New builds the control server (router, middlewares, route registration).
func New(socketPath string, loggerClient logger.Logger, d deps.Deps) *Server {
	s := &http.Server{
		Handler:           NewRouter(loggerClient, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:   s,
		socket: socketPath,
		logger: loggerClient,
	}
}

// NewRouter returns the control API handler.
func NewRouter(loggerClient logger.Logger, d deps.Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(loggerClient))

	routes.RegisterAll(r, d)
	return r
}

// Start listens on the socket and serves until Stop. A stale socket file
// left by a crashed daemon is removed; a live one is an error.
func (s *Server) Start() error {
	ln, err := Listen(s.socket)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener (blocks until error or shutdown).
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Infof("control socket listening on %s", ln.Addr())
	err := s.http.Serve(ln)
	// http.ErrServerClosed is expected on graceful shutdown.
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("control server shutting down...")
	err := s.http.Shutdown(ctx)
	if rmErr := os.Remove(s.socket); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		s.logger.Warn("failed to remove control socket", logger.Error(rmErr))
	}
	return err
}

// Listen opens a unix socket at path, readable by the owner only.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	if _, err := os.Lstat(path); err == nil {
		if conn, dialErr := net.DialTimeout("unix", path, time.Second); dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("control socket %s is in use: another daemon is running", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	return ln, nil
}
