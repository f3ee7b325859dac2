// Package config loads the immutable process configuration from the
// environment. Load is called once at startup and the resulting Config is
// passed explicitly to each component; nothing reads the environment after
// that.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Service       ServiceConfig
	Detect        DetectConfig
	Realtime      RealtimeConfig
	Record        RecordConfig
	Files         FilesConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies this process in logs and audit events.
type ServiceConfig struct {
	Principal string
}

// DetectConfig configures the PII-redaction (detect) REST client.
type DetectConfig struct {
	BaseURL     string
	BearerToken string
	AccountID   string
	VaultID     string

	// Polling. The service recommends a fixed 2s interval with no ceiling;
	// PollBackoff > 1 and PollMaxWait > 0 tighten that up. PollMaxWait 0
	// restores the unbounded behavior.
	PollInterval time.Duration
	PollBackoff  float64
	PollMaxWait  time.Duration

	// Redacted-audio output options, forwarded verbatim to the service.
	BleepGain         int
	BleepStartPadding int
	BleepStopPadding  int
	EntityTypes       []string
}

// RealtimeConfig configures the websocket speech session.
type RealtimeConfig struct {
	URL     string
	APIKey  string
	MaxWait time.Duration // 0 = wait forever
}

// RecordConfig configures microphone capture.
type RecordConfig struct {
	Duration    time.Duration
	SampleRate  int
	InputFormat string // ffmpeg input driver: alsa, avfoundation, dshow, ...
	Device      string
}

// FilesConfig holds the fixed local artifact paths, overwritten each run.
type FilesConfig struct {
	Dir      string
	Input    string
	Redacted string
	Reply    string
}

// KafkaConfig configures the optional turn-event audit publisher.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string // json, console
	MetricsAddr string // empty = no metrics listener
}

// DefaultEntityTypes is the fixed detection scope for this pipeline.
var DefaultEntityTypes = []string{"location", "ssn", "account_number"}

// Load reads configuration from the environment (after loading .env if
// present) and validates required settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "voice-privacy-pipeline")

	cfg := &Config{
		Service: ServiceConfig{
			Principal: principal,
		},
		Detect: DetectConfig{
			BaseURL:           strings.TrimRight(os.Getenv("DETECT_BASE_URL"), "/"),
			BearerToken:       os.Getenv("DETECT_BEARER_TOKEN"),
			AccountID:         os.Getenv("DETECT_ACCOUNT_ID"),
			VaultID:           os.Getenv("DETECT_VAULT_ID"),
			PollInterval:      envOrDefaultDuration("DETECT_POLL_INTERVAL", 2*time.Second),
			PollBackoff:       envOrDefaultFloat("DETECT_POLL_BACKOFF", 1.0),
			PollMaxWait:       envOrDefaultDuration("DETECT_POLL_MAX_WAIT", 10*time.Minute),
			BleepGain:         envOrDefaultInt("DETECT_BLEEP_GAIN", -30),
			BleepStartPadding: envOrDefaultInt("DETECT_BLEEP_START_PADDING", 0),
			BleepStopPadding:  envOrDefaultInt("DETECT_BLEEP_STOP_PADDING", 0),
			EntityTypes:       DefaultEntityTypes,
		},
		Realtime: RealtimeConfig{
			URL:     os.Getenv("REALTIME_URL"),
			APIKey:  os.Getenv("REALTIME_API_KEY"),
			MaxWait: envOrDefaultDuration("REALTIME_MAX_WAIT", 5*time.Minute),
		},
		Record: RecordConfig{
			Duration:    envOrDefaultDuration("RECORD_DURATION", 10*time.Second),
			SampleRate:  envOrDefaultInt("RECORD_SAMPLE_RATE", 44100),
			InputFormat: envOrDefault("RECORD_INPUT_FORMAT", "alsa"),
			Device:      envOrDefault("RECORD_DEVICE", "default"),
		},
		Files: FilesFor(envOrDefault("WORK_DIR", ".")),
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:     envOrDefault("KAFKA_TOPIC", "voice.turn.events"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "console"),
			MetricsAddr: os.Getenv("METRICS_ADDR"),
		},
	}

	var missing []string
	for _, req := range []struct{ key, val string }{
		{"DETECT_BASE_URL", cfg.Detect.BaseURL},
		{"DETECT_BEARER_TOKEN", cfg.Detect.BearerToken},
		{"DETECT_ACCOUNT_ID", cfg.Detect.AccountID},
		{"DETECT_VAULT_ID", cfg.Detect.VaultID},
		{"REALTIME_URL", cfg.Realtime.URL},
		{"REALTIME_API_KEY", cfg.Realtime.APIKey},
	} {
		if req.val == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_ENABLED is set but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

// FilesFor returns the fixed artifact paths rooted at dir.
func FilesFor(dir string) FilesConfig {
	return FilesConfig{
		Dir:      dir,
		Input:    filepath.Join(dir, "input.wav"),
		Redacted: filepath.Join(dir, "processed_output.wav"),
		Reply:    filepath.Join(dir, "output.wav"),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
