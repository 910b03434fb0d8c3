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

	"iluminize-go-home/internal/light"
	"iluminize-go-home/internal/metrics"
	"iluminize-go-home/internal/store"
	"iluminize-go-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	if err := run(cfgPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("iluminize-go-home starting", "version", version, "config", cfgPath)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	lightOpts := []light.ManagerOption{light.WithTimeout(cfg.timeout)}
	webOpts := []web.ServerOption{web.WithVersion(version)}
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		lightOpts = append(lightOpts, light.WithMetrics(metrics.New(reg)))
		webOpts = append(webOpts, web.WithMetricsHandler(metrics.Handler(reg)))
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}

	lights := light.NewManager(db, light.NewEventBus(logger), logger, lightOpts...)
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = lights.Start(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("start lights: %w", err)
	}
	defer lights.Stop()

	// Config errors in the devices section are not fatal; the rest still load.
	if err := lights.Import(cfg.Devices); err != nil {
		logger.Error("import devices", "err", err)
	}

	auto, autoOpts := initAutomation(lights, cfg, logger)
	defer auto.Stop()

	webServer := web.NewServer(lights, logger, append(webOpts, autoOpts...)...)
	defer webServer.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("web server listening", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	bridge := initMQTT(lights, cfg, logger)
	defer bridge.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		logger.Error("http server", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	return nil
}
