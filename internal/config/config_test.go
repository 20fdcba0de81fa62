package config

import (
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"SERVICE_PRINCIPAL", "HTTP_PORT", "METRICS_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"STT_PROVIDER", "STT_LANGUAGE", "OPENAI_API_KEY", "OPENAI_STT_MODEL", "STT_SAMPLE_RATE_HZ",
	"STT_MAX_ATTEMPTS", "STT_BACKOFF_BASE", "STT_CALL_TIMEOUT", "SESSION_IDLE_TIMEOUT",
	"KEYWORD_RULES_FILE", "KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_EVENTS_TOPIC", "KAFKA_PRINCIPAL",
	"WS_HEARTBEAT_INTERVAL", "WS_HEARTBEAT_TIMEOUT", "AUDIO_STORE_BACKEND", "AUDIO_STORE_DIR",
}

func clearEnv() {
	for _, v := range allEnvVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	if cfg.Service.Principal != "svc-call-insight" {
		t.Errorf("expected default principal 'svc-call-insight', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default http port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.MetricsPort != "9090" {
		t.Errorf("expected default metrics port '9090', got %s", cfg.Service.MetricsPort)
	}

	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.Language != "en" {
		t.Errorf("expected default language 'en', got %s", cfg.STT.Language)
	}
	if cfg.STT.Model != "whisper-1" {
		t.Errorf("expected default model 'whisper-1', got %s", cfg.STT.Model)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}

	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("expected default max attempts 4, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffBase != 250*time.Millisecond {
		t.Errorf("expected default backoff base 250ms, got %v", cfg.Retry.BackoffBase)
	}
	if cfg.Retry.CallTimeout != 60*time.Second {
		t.Errorf("expected default call timeout 60s, got %v", cfg.Retry.CallTimeout)
	}
	if cfg.Retry.IdleTimeout != 5*time.Minute {
		t.Errorf("expected default idle timeout 5m, got %v", cfg.Retry.IdleTimeout)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.EventsTopic != "call-insight.events" {
		t.Errorf("expected default events topic, got %s", cfg.Kafka.EventsTopic)
	}

	if cfg.Registry.HeartbeatInterval != 25*time.Second {
		t.Errorf("expected default heartbeat interval 25s, got %v", cfg.Registry.HeartbeatInterval)
	}
	if cfg.Registry.HeartbeatTimeout != 60*time.Second {
		t.Errorf("expected default heartbeat timeout 60s, got %v", cfg.Registry.HeartbeatTimeout)
	}

	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected default storage backend 'memory', got %s", cfg.Storage.Backend)
	}

	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != "json" {
		t.Errorf("expected default log format 'json', got %s", cfg.Observability.LogFormat)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("HTTP_PORT", "9999")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("STT_PROVIDER", "openai")
	os.Setenv("STT_LANGUAGE", "es")
	os.Setenv("STT_MAX_ATTEMPTS", "2")
	os.Setenv("STT_BACKOFF_BASE", "1s")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	os.Setenv("AUDIO_STORE_BACKEND", "disk")
	defer clearEnv()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.STT.Provider != "openai" {
		t.Errorf("expected STT provider 'openai', got %s", cfg.STT.Provider)
	}
	if cfg.STT.Language != "es" {
		t.Errorf("expected language 'es', got %s", cfg.STT.Language)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Errorf("expected max attempts 2, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffBase != time.Second {
		t.Errorf("expected backoff base 1s, got %v", cfg.Retry.BackoffBase)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "b1:9092" || cfg.Kafka.Brokers[1] != "b2:9092" {
		t.Errorf("expected trimmed broker list, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Storage.Backend != "disk" {
		t.Errorf("expected disk backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv()
	os.Setenv("STT_MAX_ATTEMPTS", "not-a-number")
	os.Setenv("STT_BACKOFF_BASE", "invalid")
	os.Setenv("STT_SAMPLE_RATE_HZ", "invalid")
	os.Setenv("KAFKA_ENABLED", "invalid")
	defer clearEnv()

	cfg := Load()

	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("expected default max attempts on invalid input, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffBase != 250*time.Millisecond {
		t.Errorf("expected default backoff on invalid input, got %v", cfg.Retry.BackoffBase)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	defer clearEnv()

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestSplitNonEmpty(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"a,b,c", 3},
		{"a, ,c", 2},
		{"", 0},
		{" , ", 0},
	}
	for _, tt := range tests {
		if got := splitNonEmpty(tt.in); len(got) != tt.want {
			t.Errorf("splitNonEmpty(%q) = %v, want %d entries", tt.in, got, tt.want)
		}
	}
}
