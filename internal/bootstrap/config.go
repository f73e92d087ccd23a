// Package bootstrap loads configuration and wires the pipeline together.
package bootstrap

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SampleRate is the rate of inbound capture audio.
	SampleRate int

	// Non-streaming buffer tuning.
	BufferSizeLimit    int
	BufferSilenceLimit time.Duration
	ChunkQueueCapacity int

	// Silence classification thresholds. The streaming path uses a lower
	// RMS floor so trailing speech is not clipped from live connections.
	BatchRMSThreshold  float64
	StreamRMSThreshold float64
	VADThreshold       float64
	DiagnosticInterval time.Duration

	// Streaming pool policy.
	ProviderName            string
	ProviderSilenceTolerant bool
	StreamSilenceLimit      time.Duration
	MaxStreamConnections    int

	// Provider boundary and retry tuning.
	PauseThreshold float64
	RetryMaxWindow time.Duration

	// Static provider credentials; when set they take precedence over the
	// redis credential store.
	KyutaiServerURL string
	KyutaiAPIKey    string

	BatchStreamKey string
	QueueCapacity  int

	// Pipeline goroutine cadence.
	TickInterval    time.Duration
	MonitorInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,

		SampleRate: getEnvInt("SAMPLE_RATE", 16000),

		BufferSizeLimit:    getEnvInt("BUFFER_SIZE_LIMIT", 960000),
		BufferSilenceLimit: getEnvMillis("BUFFER_SILENCE_LIMIT_MS", 3000),
		ChunkQueueCapacity: getEnvInt("CHUNK_QUEUE_CAPACITY", 4096),

		BatchRMSThreshold:  getEnvFloat("BATCH_RMS_THRESHOLD", 0.01),
		StreamRMSThreshold: getEnvFloat("STREAM_RMS_THRESHOLD", 0.0025),
		VADThreshold:       getEnvFloat("VAD_THRESHOLD", 0.25),
		DiagnosticInterval: getEnvMillis("DIAGNOSTIC_INTERVAL_MS", 30000),

		ProviderName:            getEnv("PROVIDER_NAME", "kyutai"),
		ProviderSilenceTolerant: getEnv("PROVIDER_SILENCE_TOLERANT", "true") == "true",
		StreamSilenceLimit:      getEnvMillis("STREAM_SILENCE_LIMIT_MS", 0),
		MaxStreamConnections:    getEnvInt("MAX_STREAM_CONNECTIONS", 4),

		PauseThreshold: getEnvFloat("PAUSE_THRESHOLD", 0.25),
		RetryMaxWindow: getEnvMillis("RETRY_MAX_WINDOW_MS", 300000),

		KyutaiServerURL: getEnv("KYUTAI_SERVER_URL", ""),
		KyutaiAPIKey:    getEnv("KYUTAI_API_KEY", ""),

		BatchStreamKey: getEnv("BATCH_STREAM_KEY", "transcription:batch"),
		QueueCapacity:  getEnvInt("QUEUE_CAPACITY", 1024),

		TickInterval:    getEnvMillis("TICK_INTERVAL_MS", 100),
		MonitorInterval: getEnvMillis("MONITOR_INTERVAL_MS", 1000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
