// Package config loads the server environment and the client YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Server is the record store configuration. Flags in cmd/server override these values.
type Server struct {
	GRPCAddr      string
	HTTPAddr      string
	DSN           string // empty selects the in-memory store
	JWTKey        string
	TokenTTL      time.Duration
	GracePeriod   time.Duration
	PurgeSchedule string
	PurgeBatch    int
	RatePerMinute int
	RateBurst     int
	TLSCert       string
	TLSKey        string
	Dev           bool
}

// LoadServer reads CHARTKEEPER_* variables, after loading the optional .env files.
func LoadServer(envFiles ...string) (*Server, error) {
	// missing .env is fine
	_ = godotenv.Load(envFiles...)

	ttl, err := time.ParseDuration(getEnv("CHARTKEEPER_TOKEN_TTL", "12h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHARTKEEPER_TOKEN_TTL: %w", err)
	}
	grace, err := time.ParseDuration(getEnv("CHARTKEEPER_GRACE_PERIOD", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHARTKEEPER_GRACE_PERIOD: %w", err)
	}
	if grace <= 0 {
		return nil, fmt.Errorf("CHARTKEEPER_GRACE_PERIOD must be positive, got %s", grace)
	}

	return &Server{
		GRPCAddr:      getEnv("CHARTKEEPER_ADDR", ":8443"),
		HTTPAddr:      getEnv("CHARTKEEPER_HTTP_ADDR", ":8080"),
		DSN:           getEnv("CHARTKEEPER_DSN", ""),
		JWTKey:        getEnv("CHARTKEEPER_JWT_KEY", ""),
		TokenTTL:      ttl,
		GracePeriod:   grace,
		PurgeSchedule: getEnv("CHARTKEEPER_PURGE_SCHEDULE", "@every 1h"),
		PurgeBatch:    getEnvAsInt("CHARTKEEPER_PURGE_BATCH", 100),
		RatePerMinute: getEnvAsInt("CHARTKEEPER_RATE_PER_MINUTE", 120),
		RateBurst:     getEnvAsInt("CHARTKEEPER_RATE_BURST", 30),
		TLSCert:       getEnv("CHARTKEEPER_TLS_CERT", ""),
		TLSKey:        getEnv("CHARTKEEPER_TLS_KEY", ""),
		Dev:           getEnvAsBool("CHARTKEEPER_DEV", false),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
