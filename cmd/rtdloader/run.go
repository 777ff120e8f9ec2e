package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rickgao/rtd-loader/internal/config"
	"github.com/rickgao/rtd-loader/internal/database"
	"github.com/rickgao/rtd-loader/internal/metrics"
	"github.com/rickgao/rtd-loader/internal/session"
	"github.com/rickgao/rtd-loader/internal/store"
	"github.com/rickgao/rtd-loader/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one loading session",
	Long: `Run connects the enabled families to the RTD terminal and loads until
interrupted, until the configured shutdown time, or until a connection
gives up. Provisional rows that were never finalized are purged on exit.`,
	Args: cobra.NoArgs,
	RunE: runLoader,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runLoader(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging
	logger := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format).
		With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting rtdloader", append(version.LogAttrs(), "config", configPath)...)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Market.Host,
		"port", cfg.Database.Market.Port,
		"database", cfg.Database.Market.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database.Market, "rtdloader-"+cfg.Instance.ID, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Build the session
	sessCfg, err := sessionConfig(cfg, time.Now())
	if err != nil {
		return fmt.Errorf("build session config: %w", err)
	}
	sess, err := session.New(sessCfg, store.NewPG(pool, cfg.Session.Timezone), m, logger)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	// Start health server early so connection progress can be monitored
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(pool, sess, reg, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("rtdloader running",
		"session", sess.ID(),
		"reference_date", sessCfg.ReferenceDay.Format(time.DateOnly),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	runErr := sess.Run(ctx)

	logger.Info("shutting down...")

	// Graceful shutdown of health server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	if runErr != nil {
		logger.Error("session failed", "error", runErr)
		return runErr
	}
	logger.Info("rtdloader stopped")
	return nil
}
