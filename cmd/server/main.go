package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/podiumlabs/rehearsal-gateway/internal/batch"
	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/media"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
	"github.com/podiumlabs/rehearsal-gateway/internal/resilience"
	"github.com/podiumlabs/rehearsal-gateway/internal/session"
	"github.com/podiumlabs/rehearsal-gateway/internal/stt"
	"github.com/podiumlabs/rehearsal-gateway/internal/transcript"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("batch_provider", cfg.BatchProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Rehearsal Gateway starting")

	// Shared pipeline components
	registry := transcript.NewRegistry()
	extractor := media.NewExtractor()
	breaker := resilience.NewCircuitBreaker("batch_transcription",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	chunker := batch.NewChunker(cfg, extractor, stt.NewBatchClient(cfg), breaker)

	mux := http.NewServeMux()

	// Live transcription WebSocket
	mux.HandleFunc("/streams/live", session.HandleLiveStream(cfg, registry))

	// Batch transcription upload
	mux.HandleFunc("/transcribe/file", batch.HandleTranscribeFile(cfg, extractor, chunker))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: ffmpeg on PATH and an STT key configured
	checks := map[string]observability.HealthCheckFunc{
		"ffmpeg": func(ctx context.Context) (bool, error) {
			if !extractor.Available() {
				return false, fmt.Errorf("ffmpeg/ffprobe not found on PATH")
			}
			return true, nil
		},
		"stt_backend": func(ctx context.Context) (bool, error) {
			if cfg.STTAPIKey == "" {
				return false, fmt.Errorf("STT_API_KEY is not configured")
			}
			return true, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Minute, // Batch uploads stream for a while
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/live", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Flush trailing speech for every active session before the process exits.
	registry.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
