package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Santiago a Pie service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port     string
	LogLevel string

	// Auth configuration
	JWTSecret string

	// GeoJSON data files
	ComunasFile  string
	SegmentsFile string

	// SoSafe feed configuration
	SoSafeURL          string
	SoSafeAPIKey       string
	SoSafePollInterval time.Duration
	SoSafePageSize     int

	// RabbitMQ configuration
	AMQPURL          string
	ReportsExchange  string
	ReportRoutingKey string

	// Live feed configuration
	BroadcastInterval time.Duration

	// Scoring configuration
	ScoreHalfLife     time.Duration
	RecomputeInterval time.Duration

	// Alerts configuration
	SendGridAPIKey string
	AlertFromName  string
	AlertFromEmail string
	AlertThreshold float64
	AlertCooldown  time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "santiagoapie"),

		// Server defaults
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Auth defaults
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		// Data file defaults
		ComunasFile:  getEnv("COMUNAS_GEOJSON", "data/comunas_rm.geojson"),
		SegmentsFile: getEnv("SEGMENTS_GEOJSON", "data/calles_santiago.geojson"),

		// SoSafe defaults
		SoSafeURL:          getEnv("SOSAFE_URL", ""),
		SoSafeAPIKey:       getEnv("SOSAFE_API_KEY", ""),
		SoSafePollInterval: getDurationEnv("SOSAFE_POLL_INTERVAL", 5*time.Minute),
		SoSafePageSize:     getIntEnv("SOSAFE_PAGE_SIZE", 200),

		// RabbitMQ defaults
		AMQPURL:          getEnv("AMQP_URL", ""),
		ReportsExchange:  getEnv("REPORTS_EXCHANGE", "santiago.reports"),
		ReportRoutingKey: getEnv("REPORT_ROUTING_KEY", "report.created"),

		// Live feed defaults (1 second)
		BroadcastInterval: getDurationEnv("BROADCAST_INTERVAL", time.Second),

		// Scoring defaults (30 day half-life, hourly recompute)
		ScoreHalfLife:     getDurationEnv("SCORE_HALF_LIFE", 30*24*time.Hour),
		RecomputeInterval: getDurationEnv("SCORE_RECOMPUTE_INTERVAL", time.Hour),

		// Alerts defaults
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		AlertFromName:  getEnv("ALERT_FROM_NAME", "Santiago a Pie"),
		AlertFromEmail: getEnv("ALERT_FROM_EMAIL", "alertas@santiagoapie.cl"),
		AlertThreshold: getFloatEnv("ALERT_THRESHOLD", 35.0),
		AlertCooldown:  getDurationEnv("ALERT_COOLDOWN", 24*time.Hour),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
