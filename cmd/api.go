package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"embeddra/internal/adapter/inbound/api"
	"embeddra/internal/adapter/outbound/messaging"
	"embeddra/internal/adapter/outbound/repository"
	"embeddra/internal/application/common/logging"
	"embeddra/internal/application/common/slogger"
	"embeddra/internal/application/service"
	"embeddra/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the admin API server",
	Long: `Start the admin HTTP API server. The API accepts tenant catalog
uploads, creates ingestion jobs, and announces them on the job queue.`,
	Run: func(_ *cobra.Command, _ []string) {
		runAPI(GetConfig())
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cfg *config.Config) {
	setupLogger(cfg)

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
	txManager := repository.NewTransactionManager(pool)

	ingestionService, err := service.NewIngestionService(
		jobRepo, batchRepo, publisher, txManager, int(cfg.API.MaxBodyBytes))
	if err != nil {
		log.Fatalf("Failed to create ingestion service: %v", err)
	}

	catalogHandler, err := api.NewCatalogHandler(ingestionService)
	if err != nil {
		log.Fatalf("Failed to create catalog handler: %v", err)
	}
	healthHandler := api.NewHealthHandler(repository.NewDatabaseHealthChecker(pool), publisher)

	server, err := api.NewServer(cfg.API, catalogHandler, healthHandler)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	waitForShutdownSignal()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Server shutdown failed", slogger.Fields{"error": err.Error()})
	}
}

func setupLogger(cfg *config.Config) {
	logger, err := logging.NewApplicationLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	slogger.SetGlobalLogger(logger)
}

func createDatabasePool(cfg *config.Config) (*pgxpool.Pool, error) {
	return repository.NewDatabaseConnection(repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		Schema:         "embeddra",
		SSLMode:        cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections,
	})
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slogger.InfoNoCtx("Shutdown signal received", slogger.Fields{"signal": sig.String()})
}
