package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server settings
	GatewayPort string
	GRPCPort    string

	// Storage settings
	RedisAddr     string
	MongoURI      string
	MongoDatabase string

	// Event mirror settings
	KafkaBrokers     []string
	KafkaEventsTopic string

	// JWT settings
	JWTSecret string

	// Rate limiting settings
	RateLimitRPS   int
	RateLimitBurst int

	// Feature flags
	MockMode bool
	DevMode  bool

	// Logging settings
	LogLevel  string
	LogFormat string

	// Simulation settings
	DefaultCurrency    string
	AuthLatency        time.Duration
	CaptureLatency     time.Duration
	CaptureSuccessRate float64
	BankLatency        time.Duration
	CryptoLatency      time.Duration

	// Subscriber queue size per SSE or gRPC connection
	SubscriberBuffer int
}

func Load() *Config {
	return &Config{
		GatewayPort:        getEnv("GATEWAY_PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "9090"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DATABASE", "payflow"),
		KafkaBrokers:       getListEnv("KAFKA_BROKERS", nil),
		KafkaEventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "mti-events"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret-key"),
		RateLimitRPS:       getIntEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getIntEnv("RATE_LIMIT_BURST", 20),
		MockMode:           getBoolEnv("MOCK_MODE", false),
		DevMode:            getBoolEnv("DEV_MODE", false),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		DefaultCurrency:    getEnv("DEFAULT_CURRENCY", "USD"),
		AuthLatency:        getMillisEnv("AUTH_LATENCY_MS", 0),
		CaptureLatency:     getMillisEnv("CAPTURE_LATENCY_MS", 2000),
		CaptureSuccessRate: getFloatEnv("CAPTURE_SUCCESS_RATE", 0.95),
		BankLatency:        getMillisEnv("BANK_LATENCY_MS", 1000),
		CryptoLatency:      getMillisEnv("CRYPTO_LATENCY_MS", 1500),
		SubscriberBuffer:   getIntEnv("SUBSCRIBER_BUFFER", 64),
	}
}

// AuditConfig configures the audit consumer binary.
type AuditConfig struct {
	KafkaBroker   string
	KafkaTopic    string
	KafkaDLQTopic string
	GroupID       string
	ESURL         string
	ESIndex       string
	LogLevel      string
	LogFormat     string
}

func LoadAudit() *AuditConfig {
	return &AuditConfig{
		KafkaBroker:   getEnv("KAFKA_BROKER", "localhost:9092"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "mti-events"),
		KafkaDLQTopic: getEnv("KAFKA_DLQ_TOPIC", "mti-events-dlq"),
		GroupID:       getEnv("KAFKA_GROUP_ID", "mti-audit-group"),
		ESURL:         getEnv("ES_URL", "http://localhost:9200"),
		ESIndex:       getEnv("ES_INDEX", "mti-events"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getMillisEnv reads an integer number of milliseconds.
func getMillisEnv(key string, fallbackMs int) time.Duration {
	return time.Duration(getIntEnv(key, fallbackMs)) * time.Millisecond
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getListEnv(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
