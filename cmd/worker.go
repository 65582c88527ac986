package cmd

import (
	"context"
	"log"
	"time"

	msgconsumer "embeddra/internal/adapter/inbound/messaging"
	"embeddra/internal/adapter/outbound/embeddings/remote"
	"embeddra/internal/adapter/outbound/embeddings/simple"
	"embeddra/internal/adapter/outbound/index"
	"embeddra/internal/adapter/outbound/messaging"
	"embeddra/internal/adapter/outbound/repository"
	"embeddra/internal/application/common/slogger"
	"embeddra/internal/application/worker"
	"embeddra/internal/config"
	"embeddra/internal/port/outbound"
	"embeddra/internal/version"

	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the ingestion worker",
	Long: `Start the ingestion worker. The worker consumes job announcements
from the queue, embeds each tenant catalog, bulk-loads the vectors into the
search index, and tracks job status. It also runs the retry forwarder and
the terminal-queue consumer.`,
	Run: func(_ *cobra.Command, _ []string) {
		runWorker(GetConfig())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cfg *config.Config) {
	setupLogger(cfg)

	meterProvider, err := worker.SetupMeterProvider(context.Background(), version.Get().Version)
	if err != nil {
		log.Fatalf("Failed to set up metrics: %v", err)
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			slogger.WarnNoCtx("Meter provider shutdown failed", slogger.Fields{"error": err.Error()})
		}
	}()

	pool, err := createDatabasePool(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	publisher, err := messaging.NewNATSMessagePublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create message publisher: %v", err)
	}
	if err := publisher.Connect(); err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer func() {
		if err := publisher.Disconnect(); err != nil {
			slogger.WarnNoCtx("Failed to disconnect publisher", slogger.Fields{"error": err.Error()})
		}
	}()

	jobRepo := repository.NewPostgreSQLIngestionJobRepository(pool)
	batchRepo := repository.NewPostgreSQLRawBatchRepository(pool)

	embedder, err := createEmbeddingService(cfg)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	indexer, err := index.NewQdrantBulkIndexer(cfg.Qdrant)
	if err != nil {
		log.Fatalf("Failed to create bulk indexer: %v", err)
	}
	defer func() {
		if err := indexer.Close(); err != nil {
			slogger.WarnNoCtx("Failed to close indexer connection", slogger.Fields{"error": err.Error()})
		}
	}()

	processor, err := worker.NewJobProcessor(
		worker.JobProcessorConfig{MaxRetryCount: cfg.Queue.MaxRetryCount},
		jobRepo, batchRepo, embedder, indexer,
	)
	if err != nil {
		log.Fatalf("Failed to create job processor: %v", err)
	}

	consumer, err := msgconsumer.NewNATSConsumer(msgconsumer.ConsumerConfig{
		Subject:       messaging.SubjectJobs,
		QueueGroup:    cfg.Worker.QueueGroup,
		DurableName:   "ingestion-worker",
		AckWait:       cfg.Worker.JobTimeout + 30*time.Second,
		MaxDeliver:    cfg.Queue.MaxRetryCount + 5,
		MaxAckPending: cfg.Worker.Concurrency * 2,
		Concurrency:   cfg.Worker.Concurrency,
		FetchBatch:    cfg.Worker.Prefetch,
		MaxRetryCount: cfg.Queue.MaxRetryCount,
		JobTimeout:    cfg.Worker.JobTimeout,
	}, cfg.NATS, processor, publisher)
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}

	forwarder, err := msgconsumer.NewRetryForwarder(cfg.NATS, cfg.Queue.RetryDelay)
	if err != nil {
		log.Fatalf("Failed to create retry forwarder: %v", err)
	}

	dlqConsumer, err := msgconsumer.NewDLQConsumer(msgconsumer.DLQConsumerConfig{
		DurableName:       "ingestion-dlq",
		ProcessingTimeout: 30 * time.Second,
	}, cfg.NATS, worker.NewDLQHandler(jobRepo))
	if err != nil {
		log.Fatalf("Failed to create DLQ consumer: %v", err)
	}

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	if err := forwarder.Start(ctx); err != nil {
		log.Fatalf("Failed to start retry forwarder: %v", err)
	}
	if err := dlqConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start DLQ consumer: %v", err)
	}

	slogger.InfoNoCtx("Worker started", slogger.Fields{
		"concurrency":     cfg.Worker.Concurrency,
		"max_retry_count": cfg.Queue.MaxRetryCount,
		"retry_delay":     cfg.Queue.RetryDelay.String(),
	})

	waitForShutdownSignal()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := dlqConsumer.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("DLQ consumer shutdown failed", slogger.Fields{"error": err.Error()})
	}
	if err := forwarder.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Retry forwarder shutdown failed", slogger.Fields{"error": err.Error()})
	}
	if err := consumer.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Consumer shutdown failed", slogger.Fields{"error": err.Error()})
	}
}

// createEmbeddingService picks the embedding backend by configured provider.
func createEmbeddingService(cfg *config.Config) (outbound.EmbeddingService, error) {
	if cfg.Embedding.Provider == "remote" {
		return remote.NewClient(cfg.Embedding)
	}
	return simple.New(cfg.Embedding.Dimensions), nil
}
