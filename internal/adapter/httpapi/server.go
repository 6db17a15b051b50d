package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// Server runs the API on a listener until its context is cancelled.
type Server struct {
	httpSrv   *http.Server
	logger    *slog.Logger
	boundAddr atomic.Value // string
}

// NewServer wraps handler in an http.Server on addr. Zero timeouts fall back
// to 30s reads and 5m writes so long turns are not cut off.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, logger *slog.Logger) *Server {
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}
	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
		},
		logger: logger,
	}
}

// Start listens and serves, blocking until ctx is done or serving fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("http api listen: %w", err)
	}
	s.boundAddr.Store(ln.Addr().String())
	s.logger.Info("http api started", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http api stopping")
	return s.httpSrv.Shutdown(ctx)
}

// BoundAddr returns the listening address once Start has bound, else "".
func (s *Server) BoundAddr() string {
	v, _ := s.boundAddr.Load().(string)
	return v
}
