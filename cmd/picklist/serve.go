package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/frc-picklist/internal/health"
	"github.com/yourusername/frc-picklist/internal/metrics"
	"github.com/yourusername/frc-picklist/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops server with the picklist HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gen, err := newGenerator(ctx)
		if err != nil {
			return err
		}
		provider, err := newProvider(ctx)
		if err != nil {
			return err
		}

		checks := map[string]health.Pinger{}
		if redisClient != nil {
			checks["redis"] = health.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
		}
		if db != nil {
			checks["database"] = health.PingFunc(db.HealthCheck)
		}

		maintenance := scheduler.NewCacheMaintenance(gen, gen.Store(), appLog)
		if cfg.Cache.FlushSchedule != "" {
			if err := maintenance.ScheduleFlush(cfg.Cache.FlushSchedule); err != nil {
				return err
			}
		}
		if cfg.Cache.StatsSchedule != "" {
			if err := maintenance.ScheduleStats(cfg.Cache.StatsSchedule); err != nil {
				return err
			}
		}
		if err := maintenance.Start(); err != nil {
			return err
		}
		defer func() {
			if err := maintenance.Stop(); err != nil {
				appLog.WithError(err).Warn("Cache maintenance did not stop cleanly")
			}
		}()

		server := health.NewServer(health.Config{
			ServiceName: cfg.App.Name,
			Version:     Version,
			Commit:      GitCommit,
			Port:        cfg.Metrics.Port,
			Logger:      appLog,
			Checks:      checks,
			MetricsPath: cfg.Metrics.Path,
			Metrics:     metricsHandler(),
			API:         health.NewAPI(gen, provider, appLog),
		})
		if err := server.Start(ctx); err != nil {
			return err
		}
		server.SetReady(true)

		appLog.WithFields(logrus.Fields{
			"environment": cfg.App.Environment,
			"provider":    cfg.LLM.Provider,
			"model":       cfg.LLM.Model,
			"cache":       cfg.Cache.Backend,
			"port":        cfg.Metrics.Port,
		}).Info("Picklist server running")

		<-ctx.Done()
		server.SetReady(false)
		appLog.Info("Shutdown signal received")
		return server.Shutdown()
	},
}

func metricsHandler() http.Handler {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.Handler()
}
