// Package config loads service configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Retry         RetryConfig
	Keyword       KeywordConfig
	Kafka         KafkaConfig
	Registry      RegistryConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	MetricsPort string
}

type STTConfig struct {
	Provider     string // mock, openai, google
	Language     string
	APIKey       string // openai
	Model        string // openai
	SampleRateHz int    // google
}

type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	CallTimeout time.Duration
	IdleTimeout time.Duration
}

type KeywordConfig struct {
	RulesFile string // optional JSON rule file; built-in rules when empty
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	EventsTopic string
	Principal   string
}

type RegistryConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

type StorageConfig struct {
	Backend string // memory or disk
	Dir     string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present.
func Load() *Config {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-call-insight")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		STT: STTConfig{
			Provider:     envOrDefault("STT_PROVIDER", "mock"),
			Language:     envOrDefault("STT_LANGUAGE", "en"),
			APIKey:       envOrDefault("OPENAI_API_KEY", ""),
			Model:        envOrDefault("OPENAI_STT_MODEL", "whisper-1"),
			SampleRateHz: envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
		},
		Retry: RetryConfig{
			MaxAttempts: envOrDefaultInt("STT_MAX_ATTEMPTS", 4),
			BackoffBase: envOrDefaultDuration("STT_BACKOFF_BASE", 250*time.Millisecond),
			CallTimeout: envOrDefaultDuration("STT_CALL_TIMEOUT", 60*time.Second),
			IdleTimeout: envOrDefaultDuration("SESSION_IDLE_TIMEOUT", 5*time.Minute),
		},
		Keyword: KeywordConfig{
			RulesFile: envOrDefault("KEYWORD_RULES_FILE", ""),
		},
		Kafka: KafkaConfig{
			Enabled:     envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:     splitNonEmpty(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
			EventsTopic: envOrDefault("KAFKA_EVENTS_TOPIC", "call-insight.events"),
			Principal:   envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Registry: RegistryConfig{
			HeartbeatInterval: envOrDefaultDuration("WS_HEARTBEAT_INTERVAL", 25*time.Second),
			HeartbeatTimeout:  envOrDefaultDuration("WS_HEARTBEAT_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Backend: envOrDefault("AUDIO_STORE_BACKEND", "memory"),
			Dir:     envOrDefault("AUDIO_STORE_DIR", "/tmp/call-insight-audio"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
