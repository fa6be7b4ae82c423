// Command pathwised runs the learning-progress core as a daemon: it wires
// config, the selected storage backend, the content loader, the scoring
// oracle, and the lifecycle engine together, and serves a health endpoint
// until told to stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pathwise-learning/pathwise/internal/config"
	"github.com/pathwise-learning/pathwise/internal/content"
	"github.com/pathwise-learning/pathwise/internal/domain"
	"github.com/pathwise-learning/pathwise/internal/events"
	"github.com/pathwise-learning/pathwise/internal/lifecycle"
	"github.com/pathwise-learning/pathwise/internal/llm"
	"github.com/pathwise-learning/pathwise/internal/oracle"
	"github.com/pathwise-learning/pathwise/internal/storage/object"
	"github.com/pathwise-learning/pathwise/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	repos, closeStorage, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStorage()

	cache := content.NewLRUCache(cfg.ContentCacheSize, cfg.ContentCacheTTL)
	loader := content.NewLoader(content.NewFileSource(cfg.ContentPath), cache, cfg.ContentCacheDisabled, logger)
	generator := oracle.NewNarrativeGenerator(loader)

	var rubric oracle.Scorer
	if cfg.LLMProvider != "" {
		provider, err := llm.New(llm.Config{
			Provider: cfg.LLMProvider,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
			BaseURL:  cfg.LLMBaseURL,
		})
		if err != nil {
			return fmt.Errorf("build llm provider: %w", err)
		}
		rubric = oracle.NewRubricScorer(provider)
		logger.Info("open-ended grading enabled", "provider", cfg.LLMProvider)
	}

	resilientCfg := oracle.DefaultResilientConfig()
	resilientCfg.Logger = logger
	scorer := oracle.NewResilientScorer(oracle.NewTypeRouter(oracle.NewAnswerKeyScorer(), rubric), resilientCfg)
	defer scorer.Close()

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect event broker: %w", err)
	}
	defer publisher.Close()

	engine := lifecycle.NewEngine(repos, scorer, generator, publisher, logger)

	logger.Info("pathwised started",
		"port", cfg.Port,
		"backend", cfg.StorageBackend,
		"content", cfg.ContentPath,
		"events", cfg.AMQPURL != "")

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: healthHandler(cfg, engine),
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStorage(cfg *config.Config) (domain.Repositories, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return domain.Repositories{}, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return domain.Repositories{}, nil, err
		}
		return sqlite.NewRepositories(db), func() { db.Close() }, nil

	case config.BackendObject:
		if cfg.UseS3() {
			store, err := object.NewS3Store(object.S3Config{
				Endpoint:  cfg.S3Endpoint,
				Region:    cfg.S3Region,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
				Bucket:    cfg.S3Bucket,
				UseSSL:    cfg.S3UseSSL,
			})
			if err != nil {
				return domain.Repositories{}, nil, err
			}
			return object.NewRepositories(store), func() {}, nil
		}
		store, err := object.NewLocalStore(cfg.ObjectStorePath)
		if err != nil {
			return domain.Repositories{}, nil, err
		}
		return object.NewRepositories(store), func() {}, nil

	default:
		return domain.Repositories{}, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func openPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Info("no RABBITMQ_URL set, lifecycle events disabled")
		return events.NoopPublisher{}, nil
	}
	conn, err := events.NewConnection(cfg.AMQPURL)
	if err != nil {
		return nil, err
	}
	return events.NewAMQPPublisher(conn, logger), nil
}

func healthHandler(cfg *config.Config, engine *lifecycle.Engine) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := engine.Health(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"backend": cfg.StorageBackend,
		})
	})
	return mux
}
