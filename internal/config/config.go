package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the rehearsal gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Speech-to-text backend configuration
	STTAPIKey   string `envconfig:"STT_API_KEY" required:"true"`
	STTBaseURL  string `envconfig:"STT_BASE_URL" default:"http://localhost:9090"` // Token + batch endpoint base
	STTWSURL    string `envconfig:"STT_WS_URL" default:"ws://localhost:9090"`     // Realtime WebSocket base
	STTProvider string `envconfig:"STT_PROVIDER" default:"realtime"`              // realtime, deepgram
	STTLanguage string `envconfig:"STT_LANGUAGE" default:""`                      // Optional language hint (en, es, fr, etc.)

	// Deepgram live backend (only used when STT_PROVIDER=deepgram)
	DeepgramModel string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Batch transcription configuration
	BatchProvider       string `envconfig:"BATCH_PROVIDER" default:"endpoint"`       // endpoint, openai
	BatchModel          string `envconfig:"BATCH_MODEL" default:"whisper-1"`         // Model for the openai provider
	MaxSegmentBytes     int64  `envconfig:"MAX_SEGMENT_BYTES" default:"26214400"`    // Hard per-request ceiling (25MB)
	TargetSegmentBytes  int64  `envconfig:"TARGET_SEGMENT_BYTES" default:"20971520"` // Working ceiling with margin (20MB)
	MaxSegmentSeconds   int    `envconfig:"MAX_SEGMENT_SECONDS" default:"300"`       // Target segment duration cap
	MinSegmentSeconds   int    `envconfig:"MIN_SEGMENT_SECONDS" default:"45"`        // Shrink-retry floor
	BatchConcurrency    int    `envconfig:"BATCH_CONCURRENCY" default:"3"`           // Parallel segment transcriptions
	SegmentExtractRetry int    `envconfig:"SEGMENT_EXTRACT_RETRY" default:"4"`       // Shrink-retry attempts per oversized segment

	// Live audio pipeline configuration
	SampleRate        int     `envconfig:"SAMPLE_RATE" default:"16000"`          // PCM16 mono sample rate mandated by the backend
	CommitIntervalMs  int     `envconfig:"COMMIT_INTERVAL_MS" default:"500"`     // Commit scheduling tick
	MinCommitMs       int     `envconfig:"MIN_COMMIT_MS" default:"300"`          // Minimum buffered audio before a commit fires
	CaptureBufferSize int     `envconfig:"CAPTURE_BUFFER_SIZE" default:"65536"`  // Ingress ring buffer size in bytes
	FlushOnStop       bool    `envconfig:"FLUSH_ON_STOP" default:"false"`        // Commit remaining audio on graceful stop
	SilenceGate       bool    `envconfig:"SILENCE_GATE" default:"true"`          // Skip commits of pure-silence windows
	SilenceThreshold  float64 `envconfig:"SILENCE_THRESHOLD" default:"250.0"`    // RMS threshold for the silence gate

	// Utterance aggregation configuration
	MinUtteranceWords int `envconfig:"MIN_UTTERANCE_WORDS" default:"8"` // Word count for the short-pause flush
	ShortPauseMs      int `envconfig:"SHORT_PAUSE_MS" default:"1500"`   // Quiet period for the word-count flush
	LongPauseMs       int `envconfig:"LONG_PAUSE_MS" default:"3000"`    // Quiet period that flushes regardless of word count
	DebounceMs        int `envconfig:"DEBOUNCE_MS" default:"1000"`      // Debounce after a final with no flush trigger

	// Resilience configuration
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`      // Retries for transient batch failures
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"200"` // Initial backoff in milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.STTAPIKey == "" {
		return nil, fmt.Errorf("STT_API_KEY is required")
	}
	if cfg.MinSegmentSeconds <= 0 || cfg.MaxSegmentSeconds < cfg.MinSegmentSeconds {
		return nil, fmt.Errorf("invalid segment duration bounds: min=%d max=%d", cfg.MinSegmentSeconds, cfg.MaxSegmentSeconds)
	}
	if cfg.TargetSegmentBytes > cfg.MaxSegmentBytes {
		return nil, fmt.Errorf("TARGET_SEGMENT_BYTES must not exceed MAX_SEGMENT_BYTES")
	}
	if cfg.CommitIntervalMs <= 0 || cfg.MinCommitMs <= 0 {
		return nil, fmt.Errorf("commit interval and minimum commit must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
