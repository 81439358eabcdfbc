package cli

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

	"github.com/spf13/cobra"

	"github.com/joshlzx/starswap/internal/browser"
	"github.com/joshlzx/starswap/internal/config"
	"github.com/joshlzx/starswap/internal/events"
	"github.com/joshlzx/starswap/internal/ledger"
	"github.com/joshlzx/starswap/internal/orch"
	"github.com/joshlzx/starswap/internal/serve"
	"github.com/joshlzx/starswap/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		jsonLogs   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the swap orchestration API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, jsonLogs)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "starswap.toml", "path to the TOML config file")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
	return cmd
}

func newLogger(jsonLogs bool) *slog.Logger {
	var handler slog.Handler
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	return slog.New(handler)
}

func runServe(ctx context.Context, configPath string, jsonLogs bool) error {
	logger := newLogger(jsonLogs)
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	chrome := browser.ProbeChrome(cfg.Browser.ChromePath)
	if chrome.Found {
		logger.Info("chrome detected", "path", chrome.Path, "version", chrome.Version)
	} else {
		logger.Warn("chrome not found, swap runs will fail until a browser is installed")
	}

	store, err := ledger.OpenSQLite(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening status store: %w", err)
	}
	defer store.Close()

	led := ledger.New(store)
	bus := events.NewBus()

	opts := cfg.BrowserOptions()
	pool := browser.NewPool(func() (browser.Instance, error) {
		return browser.NewSession(opts)
	})
	defer pool.Close()
	if cfg.Browser.PoolSize > 0 {
		if err := pool.Warm(cfg.Browser.PoolSize); err != nil {
			logger.Warn("warming browser pool", "error", err)
		}
	}

	manager := orch.NewManager(orch.New(pool, led, bus, cfg.OrchConfig()))

	srv := serve.NewServer(serve.Options{
		Ledger:  led,
		Bus:     bus,
		Manager: manager,
		Pool:    pool,
		Chrome:  chrome,
		Logger:  logger,
	})

	// Config reloads only refresh portal locators and timings; address or
	// pool changes need a restart.
	w, err := watcher.New(configPath, func(path string) {
		updated, err := config.Load(path)
		if err != nil {
			logger.Error("config reload failed", "path", path, "error", err)
			return
		}
		if err := updated.Validate(); err != nil {
			logger.Error("reloaded config invalid", "path", path, "error", err)
			return
		}
		manager.UpdatePortal(updated.PortalConfig())
		logger.Info("config reloaded", "path", path)
	})
	if err != nil {
		logger.Warn("config watcher disabled", "error", err)
	} else {
		defer w.Close()
	}

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Router(),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
