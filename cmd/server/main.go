package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/config"
	"github.com/garyjia/invoice-ledger/internal/expense"
	"github.com/garyjia/invoice-ledger/internal/export"
	httpiface "github.com/garyjia/invoice-ledger/internal/interfaces/http"
	"github.com/garyjia/invoice-ledger/internal/recognition"
	"github.com/garyjia/invoice-ledger/internal/repository"
	"github.com/garyjia/invoice-ledger/internal/service"
	"github.com/garyjia/invoice-ledger/internal/storage"
	"github.com/garyjia/invoice-ledger/pkg/database"
	"github.com/garyjia/invoice-ledger/pkg/utils"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice ledger service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	uploadStore, err := storage.NewUploadStore(cfg.Upload.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize upload store", zap.Error(err))
	}

	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)

	recognizer := recognition.NewRecognizer(recognition.Config{
		APIKey:  cfg.GLM.APIKey,
		BaseURL: cfg.GLM.BaseURL,
		Model:   cfg.GLM.Model,
		Timeout: cfg.GLM.Timeout,
	}, logger)

	classifier := expense.NewClassifier(nil)
	detector := expense.NewAnomalyDetector(expense.Thresholds{
		AmountThreshold:     cfg.Anomaly.AmountThreshold,
		ConfidenceThreshold: cfg.Anomaly.ConfidenceThreshold,
		DateMaxAgeDays:      cfg.Anomaly.DateMaxAgeDays,
	})

	exporter := export.NewExporter(logger)

	invoiceService := service.NewInvoiceService(
		invoiceRepo,
		uploadStore,
		recognizer,
		exporter,
		classifier,
		detector,
		service.Limits{
			MaxFilesPerBatch: cfg.Upload.MaxFilesPerBatch,
			MaxFileSize:      cfg.Upload.MaxFileSize,
			Workers:          cfg.Upload.Workers,
		},
		logger,
	)

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers := httpiface.NewHandlers(invoiceService, cfg.Upload.MaxFilesPerBatch, logger)
	router := httpiface.NewRouter(handlers, cfg.Upload.Dir, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
