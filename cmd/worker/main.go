// Command worker is the engine's single deployable: it loads configuration,
// wires every collaborator package together, runs the task runtime and the
// lifecycle sweep, and serves the ops-only health/metrics surface, until an
// interrupt or SIGTERM asks it to drain and exit (spec.md §4.8, §4.7, §9).
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/internal/config"
	rediscache "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/cache/redis"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/clustering"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/embedding"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/incidents"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/lifecycle"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/llm"
	kubelog "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/log"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/ops"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/severity"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/tasks"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/vectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("UCRS_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := kubelog.NewLogger(kubelog.Options{Level: cfg.Logging.Level, JSONFormat: cfg.Logging.Format != "console"})
	arbiterLog := logrus.New()
	if cfg.Logging.Format == "console" {
		arbiterLog.SetFormatter(&logrus.TextFormatter{})
	} else {
		arbiterLog.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		arbiterLog.SetLevel(lvl)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	rdb := rediscache.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.EnsureConnection(ctx); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	incidentRepo := incidents.NewPostgresRepository(db, arbiterLog)
	vectorStore := vectorstore.NewPostgresStore(db, arbiterLog)
	embedder := buildEmbedder(cfg, rdb, arbiterLog, logger)

	arbiter, err := llm.NewAnthropicArbiter(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	}, arbiterLog)
	if err != nil {
		return fmt.Errorf("failed to build LLM arbiter: %w", err)
	}

	clusterUseCase := clustering.NewUseCase(embedder, vectorStore, incidentRepo, arbiter, logger)
	velocity := severity.NewWindowVelocityDetector(incidentRepo)
	severityUseCase := severity.NewUseCase(incidentRepo, velocity, time.Now, logger)

	registry := prometheus.NewRegistry()
	metrics := tasks.NewMetrics(registry)

	queue := tasks.NewQueue(rdb, logger)

	hostname, _ := os.Hostname()
	runnerCfg := tasks.RunnerConfig{
		ClusterConcurrency:  cfg.Tasks.WorkerConcurrency,
		SeverityConcurrency: cfg.Tasks.WorkerConcurrency,
		ClusterRetry:        tasks.RetryPolicy{MaxRetries: cfg.Tasks.ClusterMaxRetries, Backoff: cfg.Tasks.ClusterRetryBackoff},
		SeverityRetry:       tasks.RetryPolicy{MaxRetries: cfg.Tasks.SeverityMaxRetries, Backoff: cfg.Tasks.SeverityRetryBackoff},
		JobTimeout:          30 * time.Second,
		ConsumerName:        fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}

	runner := tasks.NewRunner(queue, clusterJobHandler(clusterUseCase), severityJobHandler(severityUseCase), runnerCfg, metrics, logger)

	scheduler := lifecycle.NewScheduler(incidentRepo, vectorStore, time.Now, cfg.Lifecycle.SweepInterval, logger)

	opsServer := ops.NewServer(logger, registry, map[string]ops.Checker{
		"database": ops.SQLChecker(db),
		"redis":    ops.RedisChecker(rdb.Raw()),
	})
	httpSrv := &http.Server{Addr: ":" + cfg.Server.HealthPort, Handler: opsServer}
	metricsSrv := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: opsServer}

	go func() {
		logger.Info("ops server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "ops server exited")
		}
	}()
	go func() {
		logger.Info("metrics server listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "metrics server exited")
		}
	}()

	go scheduler.Run(ctx)

	logger.Info("worker starting", "consumer", runnerCfg.ConsumerName)
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("task runner exited: %w", err)
	}

	logger.Info("shutting down, draining in-flight jobs")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	if !runner.WaitTimeout(30 * time.Second) {
		logger.Info("drain timed out, exiting with jobs still in flight")
	}
	return nil
}

// buildEmbedder selects the embedding backend per cfg.Embedding.Provider
// (spec.md §4.1): "http" calls an external embedding service through a
// Redis-cached client, anything else falls back to the dependency-free
// local embedder.
func buildEmbedder(cfg *config.Config, rdb *rediscache.Client, arbiterLog *logrus.Logger, logger logr.Logger) embedding.Embedder {
	if cfg.Embedding.Provider == "http" {
		cache := rediscache.NewCache[[]float32](rdb, "embedding", time.Hour)
		return embedding.NewHTTPEmbedder(cfg.Embedding.Endpoint, cache, logger)
	}
	return embedding.NewLocalEmbedder(cfg.Embedding.Dimension, arbiterLog)
}

// clusterJobHandler adapts the clustering use case into a tasks.ClusterHandler.
func clusterJobHandler(uc *clustering.UseCase) tasks.ClusterHandler {
	return func(ctx context.Context, job tasks.ClusterJob) (int64, error) {
		result, err := uc.Cluster(ctx, clustering.Input{
			ComplaintID: job.ComplaintID,
			Title:       job.Title,
			Description: job.Description,
			BarangayID:  job.BarangayID,
			CategoryID:  job.CategoryID,
			CreatedAt:   job.CreatedAt,
			WindowHours: job.WindowHours,
			BaseWeight:  job.BaseWeight,
			Threshold:   job.Threshold,
		})
		if err != nil {
			return 0, err
		}
		return result.IncidentID, nil
	}
}

// severityJobHandler adapts the severity use case into a tasks.SeverityHandler.
func severityJobHandler(uc *severity.UseCase) tasks.SeverityHandler {
	return func(ctx context.Context, job tasks.SeverityJob) error {
		_, err := uc.Recompute(ctx, job.IncidentID)
		return err
	}
}
