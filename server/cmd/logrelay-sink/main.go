// Logrelay-sink is a local stand-in for the remote logging service. It
// accepts messages from logrelay agents and exposes them over a small JSON
// API for manual testing.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/logrelay/logrelay/server/internal/api"
	"github.com/logrelay/logrelay/server/internal/auth"
	"github.com/logrelay/logrelay/server/internal/config"
	"github.com/logrelay/logrelay/server/internal/receiver"
	"github.com/logrelay/logrelay/server/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "sink.yaml", "path to config file")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("logrelay-sink starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if cfg.Sink.Auth.Mode == "apikey" && cfg.Sink.Auth.Key() == "" {
		slog.Warn("auth key env is empty, accepting unauthenticated messages",
			"key_env", cfg.Sink.Auth.KeyEnv)
	}

	slog.Info("config loaded",
		"http_port", cfg.Sink.HTTPPort,
		"auth_mode", cfg.Sink.Auth.Mode,
		"tls", cfg.Sink.TLS.Enabled(),
		"retention", cfg.Sink.Retention,
		"max_messages", cfg.Sink.MaxMessages,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := serve(ctx, cfg.Sink); err != nil {
		slog.Error("logrelay-sink failed", "err", err)
		os.Exit(1)
	}
}

// newHandler mounts the read API under /api/ and the authenticated receiver
// on every other path.
func newHandler(cfg config.SinkConfig, st *store.Store) http.Handler {
	requireKey := auth.APIKeyMiddleware(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key())

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(st))
	mux.Handle("/", requireKey(receiver.New(st, cfg.MaxBodyBytes)))
	return mux
}

func serve(ctx context.Context, cfg config.SinkConfig) error {
	// Message store with background retention eviction.
	st := store.New(cfg.Retention, cfg.MaxMessages)
	go st.Run(ctx)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(cfg, st),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort, "tls", cfg.TLS.Enabled())
		var err error
		if cfg.TLS.Enabled() {
			err = httpSrv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("logrelay-sink shutting down", "messages", st.Count())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
