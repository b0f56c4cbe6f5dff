package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-lobstore/pkg/logging"
)

// GracefulServer runs a Server's HTTP listener and owns its teardown. On
// SIGINT or SIGTERM the listener stops accepting, in-flight requests drain
// within the timeout, and every live session is aborted so no handle
// outlives its transaction.
type GracefulServer struct {
	srv        *Server
	httpServer *http.Server
	log        logging.Logger
	timeout    time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewGracefulServer wraps srv with a listener on addr. timeout bounds the
// HTTP drain during shutdown.
func NewGracefulServer(srv *Server, addr string, timeout time.Duration) *GracefulServer {
	return &GracefulServer{
		srv: srv,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      srv.Handler(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:        srv.log,
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
	}
}

// Start serves until the listener fails or Shutdown runs. A shutdown
// triggered by signal or by a direct Shutdown call returns nil.
func (gs *GracefulServer) Start() error {
	go gs.handleSignals()

	gs.log.Info("server listening", logging.String("addr", gs.httpServer.Addr))
	if err := gs.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP listener and then aborts all live sessions.
// Subsequent calls are no-ops returning nil.
func (gs *GracefulServer) Shutdown() error {
	var err error
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		gs.log.Info("shutting down", logging.Duration("timeout", gs.timeout))
		if herr := gs.httpServer.Shutdown(ctx); herr != nil {
			err = herr
		}
		// Sessions are aborted after the drain: a request still holding a
		// session lock finishes before its transaction is torn down.
		if serr := gs.srv.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
		gs.log.Info("shutdown complete")
	})
	return err
}

// IsShuttingDown reports whether shutdown has been initiated.
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown begins.
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

func (gs *GracefulServer) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		gs.log.Info("signal received", logging.String("signal", sig.String()))
		if err := gs.Shutdown(); err != nil {
			gs.log.Error("shutdown", logging.Err(err))
		}
	case <-gs.shutdownCh:
	}
	signal.Stop(sigCh)
}
