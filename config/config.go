package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	Redis          RedisConfig
	Match          MatchConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// MatchConfig carries the matchmaking and handshake contract constants.
// Defaults are the production values; tests override them to drive time.
type MatchConfig struct {
	ActivityWindow   time.Duration // a participant is "active" within this window
	PurgeWindow      time.Duration // stale PresenceRecords older than this are swept
	HandshakeTimeout time.Duration // max time in "connecting" with no progress
	MaxRetries       int           // automatic ICE-restart attempts after disconnect
	RetryDelay       time.Duration // fixed delay between restart attempts
	SessionTTL       time.Duration // Redis TTL for session mirrors
}

func Load() *Config {
	// Optional .env file for local development; real env vars win.
	_ = godotenv.Load()

	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Match: DefaultMatchConfig(),
	}
}

// DefaultMatchConfig returns the contract constants, overridable via env.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		ActivityWindow:   getEnvSeconds("ACTIVITY_WINDOW_SECONDS", 300),
		PurgeWindow:      getEnvSeconds("PURGE_WINDOW_SECONDS", 86400),
		HandshakeTimeout: getEnvSeconds("HANDSHAKE_TIMEOUT_SECONDS", 30),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryDelay:       getEnvSeconds("RETRY_DELAY_SECONDS", 2),
		SessionTTL:       24 * time.Hour,
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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
