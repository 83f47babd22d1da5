package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/dispatcher"
	"github.com/doggo-app/locshare/internal/influx"
	"github.com/doggo-app/locshare/internal/logging"
	"github.com/doggo-app/locshare/internal/monitor"
	"github.com/doggo-app/locshare/internal/server"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	if err := setupLogging("server", "server"); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storageCfg := config.GetStorageConfig()
	serverCfg := config.GetServerConfig()
	if storageCfg.Type == "websocket" {
		return fmt.Errorf("serve needs a local storage backend, not %q", storageCfg.Type)
	}

	backend, err := initStorage(storageCfg, serverCfg)
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(componentLogger("dispatcher")))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer eventDispatcher.Close()

	opts := server.Options{Secret: serverCfg.Secret, Logger: Logger}
	var statsSink monitor.StatsWriter

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		influxManager := influx.NewManager(componentLogger("influx"), influxCfg.BackupPath)
		if err := influxManager.Connect(); err != nil {
			Logger.Error("Failed to connect to InfluxDB", "error", err)
		} else {
			defer influxManager.Close()
			opts.Sink = influxManager
			statsSink = influxManager
			Logger.Info("InfluxDB sink enabled", "url", influxCfg.URL, "backup", !influxManager.IsValid)
		}
	}

	srv := server.New(backend, eventDispatcher, opts)
	srv.RegisterHandlers()

	var stats storage.Stats
	if s, ok := backend.(storage.Stats); ok {
		stats = s
	}
	monitorService := monitor.NewService(monitor.Dependencies{
		Stats:      stats,
		LogManager: SlogManager,
		Sink:       statsSink,
		Clients:    srv.ClientCount,
		StatusPath: filepath.Join(config.GetString("logsDir"), "status.json"),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	}
	defer monitorService.Stop()

	httpServer := &http.Server{
		Addr:              serverCfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("Store server listening", "addr", serverCfg.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("store server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	Logger.Info("Shutting down store server")
	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		Logger.Error("Error shutting down store server", "error", err)
	}
	return nil
}

func closeStorage(backend storage.Backend) {
	if err := backend.Close(); err != nil {
		Logger.Error("Error closing storage backend", "error", err)
		return
	}
	if exp, ok := backend.(storage.Exportable); ok && exp.GetExportedFilePath() != "" {
		Logger.Info("Exported final snapshot", "path", exp.GetExportedFilePath())
	}
}
