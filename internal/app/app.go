package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/aggregate"
	"mail-txn-ingest-go/internal/config"
	"mail-txn-ingest-go/internal/db"
	"mail-txn-ingest-go/internal/handler"
	"mail-txn-ingest-go/internal/mail"
	"mail-txn-ingest-go/internal/metrics"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/oauth"
	"mail-txn-ingest-go/internal/parser"
	"mail-txn-ingest-go/internal/repository"
	"mail-txn-ingest-go/internal/router"
	"mail-txn-ingest-go/internal/service"
	"mail-txn-ingest-go/internal/service/scheduler"
	"mail-txn-ingest-go/internal/vault"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting mail transaction ingest service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Unknown log level %q, keeping info", cfg.Log.Level)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	v, err := vault.New(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create token vault: %w", err)
	}

	ocr := newRecognizer(cfg.OCR)
	var clients []*oauth.ProviderClient
	var retrievers []mail.Retriever
	if cfg.OAuth.Gmail.Enabled() {
		clients = append(clients, oauth.NewGmailClient(cfg.OAuth.Gmail, cfg.RedirectURL(model.ProviderGmail.String())))
		retrievers = append(retrievers, mail.NewGmailRetriever(ocr, cfg.Ingest.MaxImagesPerEmail))
		logrus.Info("Gmail provider enabled")
	}
	if cfg.OAuth.Outlook.Enabled() {
		clients = append(clients, oauth.NewOutlookClient(cfg.OAuth.Outlook, cfg.RedirectURL(model.ProviderOutlook.String())))
		retrievers = append(retrievers, mail.NewOutlookRetriever(ocr, cfg.Ingest.MaxImagesPerEmail, "", nil))
		logrus.Info("Outlook provider enabled")
	}
	tokens := oauth.NewManager(repo, repo, v, clients...)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	loc := cfg.Ingest.Location()
	ingest := service.NewIngestService(repo, retrievers, parser.DefaultRegistry(loc),
		aggregate.New(aggregate.LogNotifier{}), m, service.IngestOptions{
			Location:               loc,
			RequireInstrumentMatch: cfg.Ingest.RequireInstrumentMatch,
		})

	sched := scheduler.New(cfg.Scheduler, cfg.Ingest.DaysBack, tokens, ingest)

	h := handler.NewHandlers(dbConn, tokens, ingest, repo, sched, prometheus.DefaultGatherer, cfg.OAuth, cfg.Ingest.DaysBack)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if sqlDB, err := dbConn.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logrus.Errorf("Failed to close database: %v", err)
		}
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

func newRecognizer(cfg config.OCRConfig) mail.ImageTextRecognizer {
	if !cfg.Enabled {
		return mail.NoopRecognizer{}
	}
	r, err := mail.NewTesseractRecognizer(cfg.TesseractPath, cfg.Language)
	if err != nil {
		logrus.Warnf("Image text recognition disabled: %v", err)
		return mail.NoopRecognizer{}
	}
	return r
}
