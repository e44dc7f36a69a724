package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rtoassure/backend/internal/config"
	"github.com/rtoassure/backend/internal/credits"
	"github.com/rtoassure/backend/internal/db"
	"github.com/rtoassure/backend/internal/indexing"
	"github.com/rtoassure/backend/internal/middleware"
	"github.com/rtoassure/backend/internal/report"
	"github.com/rtoassure/backend/internal/repository"
	"github.com/rtoassure/backend/internal/storage"
	"github.com/rtoassure/backend/internal/tenant"
	"github.com/rtoassure/backend/internal/unitimport"
	"github.com/rtoassure/backend/internal/units"
	"github.com/rtoassure/backend/internal/validation"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := config.NewLogger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.DB, "./migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	rtoRepo := repository.NewRTORepository(conn.Pool)
	unitRepo := repository.NewUnitRepository(conn.Pool)
	sessionRepo := repository.NewSessionRepository(conn.Pool)
	documentRepo := repository.NewDocumentRepository(conn)
	operationRepo := repository.NewOperationRepository(conn.Pool)
	ledgerRepo := repository.NewCreditLedgerRepository(conn)
	resultRepo := repository.NewResultRepository(conn.Pool)
	importLogRepo := repository.NewImportLogRepository(conn.Pool)
	reportRepo := repository.NewReportJobRepository(conn.Pool)

	// Optional Redis lock for credit serialization
	var locker *redislock.Client
	if cfg.Server.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("Redis unreachable at %s, credit locking disabled: %v", cfg.Server.RedisAddr, err)
		} else {
			locker = redislock.New(redisClient)
		}
	}

	// Object storage: GCS bucket when configured, local directory otherwise
	var objectStore storage.ObjectStore
	if cfg.Server.StorageBucket != "" {
		objectStore, err = storage.NewGCSStore(ctx, cfg.Server.StorageBucket)
		if err != nil {
			logger.Fatalf("Failed to open GCS bucket %s: %v", cfg.Server.StorageBucket, err)
		}
	} else {
		objectStore, err = storage.NewLocalStore(cfg.Server.UploadDir)
		if err != nil {
			logger.Fatalf("Failed to prepare upload directory: %v", err)
		}
	}

	// External providers
	provider, err := indexing.NewFileSearchProvider(cfg.Provider.FileSearchBaseURL, cfg.Provider.FileSearchAPIKey, logger)
	if err != nil {
		logger.Fatalf("Failed to configure file search provider: %v", err)
	}
	judge, err := validation.NewAzureJudge(cfg.Provider.AzureOpenAIBase, cfg.Provider.AzureOpenAIKey, cfg.Provider.AzureDeployment)
	if err != nil {
		logger.Fatalf("Failed to configure Azure OpenAI: %v", err)
	}

	// Services
	creditService := credits.NewService(ledgerRepo, locker, logger, nil)
	indexingService := indexing.NewService(
		documentRepo, operationRepo, sessionRepo, creditService, objectStore, provider,
		indexing.Options{
			Store:      cfg.Provider.FileSearchStore,
			MaxWait:    cfg.Server.MaxIndexWait,
			UploadCost: cfg.Credits.UploadCost,
		},
		logger,
	)
	reconciler := indexing.NewReconciler(operationRepo, documentRepo, sessionRepo, provider, logger, nil)
	validationService := validation.NewService(
		sessionRepo, unitRepo, resultRepo, creditService, indexingService, judge,
		validation.Options{
			ValidationCost:  cfg.Credits.ValidationCost,
			WorkflowWebhook: cfg.Provider.WorkflowWebhook,
		},
		logger,
	)
	unitService := units.NewService(unitRepo, units.NewCache(10*time.Minute, nil), logger)
	importService := unitimport.NewService(unitRepo, importLogRepo, unitService, logger)
	reportService := report.NewService(reportRepo, sessionRepo, resultRepo, logger,
		report.WithReportDirectory(cfg.Server.ReportDir))
	tenantService := tenant.NewService(rtoRepo, ledgerRepo, logger)

	// Routes
	mux := http.NewServeMux()
	registerPrefix(mux, "/api/rtos", tenant.NewHTTPHandler(tenantService))
	registerPrefix(mux, "/api/documents", indexing.NewHTTPHandler(indexingService, reconciler, documentRepo, sessionRepo))
	registerPrefix(mux, "/api/validation", validation.NewHTTPHandler(validationService, sessionRepo))
	registerPrefix(mux, "/api/credits", credits.NewHTTPHandler(creditService))
	registerPrefix(mux, "/api/units/import", unitimport.NewHTTPHandler(importService, importLogRepo))
	registerPrefix(mux, "/api/units", units.NewHTTPHandler(unitService))
	registerPrefix(mux, "/api/reports", report.NewHTTPHandler(reportService))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := corsHandler.Handler(
		middleware.LoggingMiddleware(logger, middleware.TenantMiddleware(mux)),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on :%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// registerPrefix mounts the handler on both the bare path and the trailing
// slash form so sub-paths reach the same handler.
func registerPrefix(mux *http.ServeMux, path string, handler http.Handler) {
	mux.Handle(path, handler)
	mux.Handle(path+"/", handler)
}
