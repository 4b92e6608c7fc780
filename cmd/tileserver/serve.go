package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/tileserver/internal/core/config"
	"github.com/mohammed-shakir/tileserver/internal/core/server"
	"github.com/mohammed-shakir/tileserver/internal/lifecycle"
	"github.com/mohammed-shakir/tileserver/internal/logger"
	"github.com/mohammed-shakir/tileserver/internal/metrics"
)

type serveFlags struct {
	config  string
	envFile string
	port    int
	root    string
}

func newServeCommand() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tile server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "config file (yaml, toml or json)")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "listen port (overrides config)")
	cmd.Flags().StringVarP(&f.root, "root", "r", "", "root directory (overrides config)")
	return cmd
}

// loadConfig applies the dotenv file, then the config file layered under the
// environment (or the environment alone without one), then any flags the
// user set.
func loadConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", f.envFile, err)
		}
	}
	cfg := config.FromEnv()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return config.Config{}, err
		}
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if cmd.Flags().Changed("root") {
		cfg.RootPath = f.root
	}
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cfg config.Config) error {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "tileserver",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	appLog.Info("starting tile server", "version", Version, "port", cfg.Port, "root", cfg.RootPath)

	notifier, err := lifecycle.FromConfig(cfg, appLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			appLog.Warn("closing lifecycle notifier", "error", err)
		}
	}()

	engine := server.New(cfg, appLog, server.WithNotifier(notifier))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Serve(gctx) })

	if cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.MetricsAddr,
			Path:    cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		g.Go(func() error { return serveMetrics(gctx, p, appLog) })
	}

	if err := g.Wait(); err != nil {
		appLog.Error("tile server exited with error", "error", err)
		return err
	}
	appLog.Info("tile server exited")
	return nil
}

func serveMetrics(ctx context.Context, p *metrics.Provider, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              p.Addr(),
		Handler:           p.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listen", "addr", p.Addr())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
