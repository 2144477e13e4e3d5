package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jonwraymond/dhivatar/config"
	"github.com/jonwraymond/dhivatar/observe"
	"github.com/jonwraymond/dhivatar/server"
)

func newServeCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
	}
	flags := cmd.Flags()
	flags.String("addr", "", "listen address (server.addr)")
	flags.String("cache-dir", "", "cache directory (cache.dir)")
	flags.String("log-level", "", "debug|info|warn|error|off (observe.log_level)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, used, err := loadConfig(cmd.Context(), *configFile, map[string]*pflag.Flag{
			"server.addr":       flags.Lookup("addr"),
			"cache.dir":         flags.Lookup("cache-dir"),
			"observe.log_level": flags.Lookup("log-level"),
		})
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, used)
	}
	return cmd
}

func loadConfig(ctx context.Context, file string, flags map[string]*pflag.Flag) (config.Config, string, error) {
	cfg, used, err := config.Load(ctx, config.Options{File: file, Flags: flags})
	if err != nil {
		return cfg, used, err
	}
	if cfg.Project.Version == config.Default().Project.Version {
		cfg.Project.Version = version
	}
	return cfg, used, nil
}

func serve(ctx context.Context, cfg config.Config, configFile string) error {
	obs, err := observe.NewObserver(ctx, cfg.Observe.Observer(version))
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()
	logger := obs.Logger().With(observe.Field{Key: "component", Value: "main"})

	srv, err := server.Build(cfg, obs)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	fields := []observe.Field{
		{Key: "addr", Value: cfg.Server.Addr},
		{Key: "version", Value: version},
		{Key: "config", Value: configFile},
		{Key: "cache_enabled", Value: cfg.Cache.Enabled},
		{Key: "cache_backend", Value: cfg.Cache.Backend},
		{Key: "cache_dir", Value: cfg.Cache.Dir},
		{Key: "buckets", Value: cfg.Cache.Buckets},
		{Key: "overflow", Value: cfg.Cache.Overflow},
		{Key: "render_slots", Value: cfg.Render.MaxConcurrent},
		{Key: "auth", Value: cfg.Auth.Enabled()},
	}
	if cfg.Cache.WarnBytes > 0 {
		fields = append(fields, observe.Field{Key: "cache_warn", Value: humanize.Bytes(uint64(cfg.Cache.WarnBytes))})
	}
	logger.Info(ctx, "starting server", fields...)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down", observe.Field{Key: "grace", Value: cfg.Server.ShutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(ctx, "server stopped")
	return nil
}
