// Package main provides the picklist CLI and ops server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/frc-picklist/internal/cache"
	"github.com/yourusername/frc-picklist/internal/config"
	"github.com/yourusername/frc-picklist/internal/database"
	"github.com/yourusername/frc-picklist/internal/dataset"
	"github.com/yourusername/frc-picklist/internal/llm"
	"github.com/yourusername/frc-picklist/internal/logger"
	"github.com/yourusername/frc-picklist/internal/metrics"
	"github.com/yourusername/frc-picklist/internal/picklist"
	"github.com/yourusername/frc-picklist/internal/repository"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile  string
	datasetPath string
	cfg         *config.Config
	appLog      *logrus.Logger
	redisClient *redis.Client
	db          *database.DB
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "dataset", "d", "", "JSON dataset file or directory of <event>.json files (default: postgres team_metrics)")

	rootCmd.AddCommand(generateCmd, rankMissingCmd, mergeCmd, codesCmd, importCmd, serveCmd)
}

var rootCmd = &cobra.Command{
	Use:           "picklist",
	Short:         "Generate FRC alliance-selection picklists",
	Long:          `Ranks an event's teams for alliance selection with an LLM, caching results by request fingerprint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLog = logger.NewLoggerForEnvironment(cfg.App.LogLevel, cfg.App.Environment)
		metrics.InitRegistry()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeDependencies()
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig(ctx context.Context) error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	if err := config.LoadSecretsFromAWS(ctx, cfg); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return config.ValidateEnvironment(cfg)
}

// newStore returns the configured result cache backend.
func newStore(ctx context.Context) (cache.Store, error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryStore(cfg.Cache.ResultTTL()), nil
	}

	redisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := cache.NewRedisStore(redisClient, cache.RedisConfig{
		KeyPrefix:    cfg.Redis.KeyPrefix,
		DefaultTTL:   cfg.Cache.ResultTTL(),
		LockTTL:      cfg.Cache.LockTTL(),
		PollInterval: 250 * time.Millisecond,
	}, appLog)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}
	return store, nil
}

// newGenerator wires the LLM client and result store into a generator.
func newGenerator(ctx context.Context) (*picklist.Generator, error) {
	llmCfg := cfg.CompletionLLM()
	completer, err := llm.NewCompleter(&llmCfg, appLog, logger.NewAuditLogger(appLog))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLM.Provider, err)
	}
	store, err := newStore(ctx)
	if err != nil {
		return nil, err
	}
	return picklist.NewGenerator(completer, store, picklist.OptionsFromConfig(cfg), appLog), nil
}

// newProvider serves datasets from --dataset when given, otherwise from postgres.
func newProvider(ctx context.Context) (dataset.Provider, error) {
	if datasetPath != "" {
		return dataset.NewFileProvider(datasetPath), nil
	}
	repos, err := openRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("no --dataset given and %w", err)
	}
	return repos.Teams, nil
}

func openRepositories(ctx context.Context) (*repository.Repositories, error) {
	if db == nil {
		var err error
		db, err = database.Initialize(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("database unavailable: %w", err)
		}
		appLog.WithField("host", cfg.Database.Host).Info("Database connection established")
	}
	return repository.NewRepositories(db)
}

func closeDependencies() {
	if db != nil {
		db.Close()
		db = nil
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLog.WithError(err).Warn("Failed to close redis client")
		}
		redisClient = nil
	}
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
