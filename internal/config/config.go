package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// UseMemoryBroker swaps the Redis pub/sub broker for an in-process one.
	// Intended for local development and tests only.
	UseMemoryBroker bool

	// AgentEndpointURL is the upstream agent action endpoint. Actions that
	// pass local validation are forwarded here.
	AgentEndpointURL     string
	AgentEndpointTimeout time.Duration

	// AuthJWTSecret signs the user tokens presented to the gateway.
	AuthJWTSecret string

	SnapshotCacheTTL time.Duration

	// HTTP edge rate limiting (authoritative; the dispatcher-level limiter
	// stays advisory).
	RateLimitPerSecond float64
	RateLimitBurst     int

	CORSAllowedOrigins []string

	// Feed settings for the websocket surface stream.
	FeedPingInterval time.Duration
	FeedQueueDepth   int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		PublicBaseURL:        getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),
		UseMemoryBroker:      getEnvAsBool("USE_MEMORY_BROKER", false),
		AgentEndpointURL:     getEnv("AGENT_ENDPOINT_URL", ""),
		AgentEndpointTimeout: getEnvAsDuration("AGENT_ENDPOINT_TIMEOUT", 15*time.Second),
		AuthJWTSecret:        getEnv("AUTH_JWT_SECRET", ""),
		SnapshotCacheTTL:     getEnvAsDuration("SNAPSHOT_CACHE_TTL", 24*time.Hour),
		RateLimitPerSecond:   getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 30),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),
		FeedPingInterval:     getEnvAsDuration("FEED_PING_INTERVAL", 30*time.Second),
		FeedQueueDepth:       getEnvAsInt("FEED_QUEUE_DEPTH", 64),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float64
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a time.Duration
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable into a slice.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
