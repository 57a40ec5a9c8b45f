package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/fightlens/fightlens/internal/analysis"
	"github.com/fightlens/fightlens/internal/job"
	"github.com/fightlens/fightlens/internal/report"
	"github.com/fightlens/fightlens/internal/server"
	"github.com/fightlens/fightlens/internal/storage"
	"github.com/fightlens/fightlens/internal/validate"
)

func main() {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: "15:04:05",
		}),
	))

	port := getEnv("PORT", "8080")
	baseURL := getEnv("BASE_URL", "http://localhost:"+port)
	maxUploadBytes := getEnvInt64("MAX_UPLOAD_BYTES", validate.MaxUploadBytes)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       getEnv("S3_ENDPOINT", "http://localhost:3900"),
		PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		Bucket:         getEnv("S3_BUCKET", "fightlens"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Region:         getEnv("S3_REGION", "eu-central-1"),
	})
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("storage bucket check failed: %v", err)
	}
	slog.Info("storage bucket ready")

	jobs := job.NewStore()

	var detector analysis.Detector
	if detectorURL := os.Getenv("DETECTOR_URL"); detectorURL != "" {
		detector = analysis.NewHTTPDetector(detectorURL, os.Getenv("DETECTOR_API_KEY"))
		slog.Info("using inference service", "url", detectorURL)
	} else {
		detector = &analysis.SimulatedDetector{}
		slog.Warn("DETECTOR_URL not set, scoring windows with the simulated detector")
	}

	var reporter *report.Client
	if aiBaseURL := os.Getenv("AI_BASE_URL"); aiBaseURL != "" {
		model := getEnv("AI_MODEL", "mistral-small-latest")
		reporter = report.New(aiBaseURL, os.Getenv("AI_API_KEY"), model)
		slog.Info("report generation enabled", "model", model)
	} else {
		slog.Warn("AI_BASE_URL not set, reports fall back to the built-in summary")
	}

	pipeline := &analysis.Pipeline{
		Store:    jobs,
		Storage:  store,
		Detector: detector,
	}
	if reporter != nil {
		pipeline.Reporter = reporter
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	analysis.StartWorker(workerCtx, jobs, pipeline, getEnvDuration("WORKER_INTERVAL", time.Second))

	cfg := server.Config{
		Store:            jobs,
		Storage:          store,
		BaseURL:          baseURL,
		MaxUploadBytes:   maxUploadBytes,
		S3PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
	}
	if reporter != nil {
		cfg.Reporter = reporter
		cfg.Assistant = reporter
	}
	srv := server.New(cfg)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("fightlens listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	slog.Info("shutdown complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
