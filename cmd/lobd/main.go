// Command lobd serves the large-object store over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dd0wney/cluso-lobstore/pkg/auth"
	"github.com/dd0wney/cluso-lobstore/pkg/config"
	"github.com/dd0wney/cluso-lobstore/pkg/filestore"
	"github.com/dd0wney/cluso-lobstore/pkg/lob"
	"github.com/dd0wney/cluso-lobstore/pkg/logging"
	"github.com/dd0wney/cluso-lobstore/pkg/memstore"
	"github.com/dd0wney/cluso-lobstore/pkg/metrics"
	"github.com/dd0wney/cluso-lobstore/pkg/pgstore"
	"github.com/dd0wney/cluso-lobstore/pkg/s3store"
	"github.com/dd0wney/cluso-lobstore/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional; env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.Log.Level))
	logger.Info("lobd starting",
		logging.String("backend", cfg.Store.Backend),
		logging.String("listen_addr", cfg.Server.ListenAddr),
		logging.String("auth_mode", cfg.Auth.Mode),
	)

	ctx := context.Background()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("opening store", logging.Err(err))
		os.Exit(1)
	}
	defer cleanup()

	gate, err := buildGate(cfg, logger)
	if err != nil {
		logger.Error("configuring auth", logging.Err(err))
		os.Exit(1)
	}

	srv := server.New(store, server.Options{
		Gate:     gate,
		Logger:   logger,
		Registry: metrics.NewRegistry(),
		Backend:  cfg.Store.Backend,
	})

	// GracefulServer owns SIGINT/SIGTERM handling: the listener drains,
	// then every live session is aborted.
	gs := server.NewGracefulServer(srv, cfg.Server.ListenAddr, cfg.Server.ShutdownTimeout)
	if err := gs.Start(); err != nil {
		logger.Error("server error", logging.Err(err))
		os.Exit(1)
	}

	cleanup()
	logger.Info("lobd exited")
}

// openStore builds the configured backing store. cleanup releases whatever
// the backend holds open; it is safe to call more than once.
func openStore(ctx context.Context, cfg *config.Config) (lob.ObjectStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memstore.New(), func() {}, nil

	case config.BackendFile:
		store, err := filestore.Open(cfg.Store.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening filestore: %w", err)
		}
		return store, func() {}, nil

	case config.BackendPostgres:
		store, err := pgstore.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening pgstore: %w", err)
		}
		var once bool
		return store, func() {
			if !once {
				once = true
				store.Close()
			}
		}, nil

	case config.BackendS3:
		store, err := s3store.New(ctx, cfg.Store.Bucket, cfg.Store.SpoolDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening s3store: %w", err)
		}
		return store, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Store.Backend)
	}
}

// buildGate maps the auth config onto an import/export gate. Mode "none"
// returns nil, which the runtime treats as deny, unless ungated operation
// was explicitly requested.
func buildGate(cfg *config.Config, logger logging.Logger) (lob.Authorizer, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeJWT:
		return auth.NewJWTGate(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)

	case config.AuthModeAPIKey:
		gate := auth.NewAPIKeyGate()
		key, err := gate.IssueKey()
		if err != nil {
			return nil, err
		}
		// Printed once at startup; rotate by restarting or calling the
		// gate's issue/revoke methods from an admin process.
		logger.Info("issued bootstrap API key", logging.String("api_key", key))
		return gate, nil

	case config.AuthModeNone:
		if cfg.Auth.AllowUngated {
			logger.Warn("import and export are ungated; server files are reachable by any client")
			return auth.AllowAll{}, nil
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}
