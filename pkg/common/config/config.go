package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers   []string
	KafkaRunsTopic string

	// Fetching
	FetchUserAgent       string
	FetchWorkersPerRun   int
	FetchMinInterval     time.Duration
	FetchTimeout         time.Duration
	FetchMaxAttempts     int
	FetchBackoffBase     time.Duration
	FetchBackoffCap      time.Duration
	RobotsCacheTTL       time.Duration
	SourcePolicyPath     string
	RunTimeout           time.Duration
	RunJanitorInterval   time.Duration
	DefaultDiscoveryCap  int
	RateLimitRPS         int
	RateLimitBurst       int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "sneakly"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "sneakly123"),
		PostgresDB:       getEnv("POSTGRES_DB", "sneakly"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaRunsTopic: getEnv("KAFKA_RUNS_TOPIC", ""),

		FetchUserAgent:      getEnv("FETCH_USER_AGENT", "sneakly-catalog-bot/1.0"),
		FetchWorkersPerRun:  getIntEnv("FETCH_WORKERS_PER_RUN", 3),
		FetchMinInterval:    getDuration("FETCH_MIN_INTERVAL", 500*time.Millisecond),
		FetchTimeout:        getDuration("FETCH_TIMEOUT", 15*time.Second),
		FetchMaxAttempts:    getIntEnv("FETCH_MAX_ATTEMPTS", 4),
		FetchBackoffBase:    getDuration("FETCH_BACKOFF_BASE", 250*time.Millisecond),
		FetchBackoffCap:     getDuration("FETCH_BACKOFF_CAP", 10*time.Second),
		RobotsCacheTTL:      getDuration("ROBOTS_CACHE_TTL", 24*time.Hour),
		SourcePolicyPath:    getEnv("SOURCE_POLICY_PATH", ""),
		RunTimeout:          getDuration("RUN_TIMEOUT", 30*time.Minute),
		RunJanitorInterval:  getDuration("RUN_JANITOR_INTERVAL", 5*time.Minute),
		DefaultDiscoveryCap: getIntEnv("DEFAULT_DISCOVERY_CAP", 500),
		RateLimitRPS:        getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst:      getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
