package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	AdminUsers     []string
	RequireAuth    bool
	STUNURL        string
	LogLevel       string
	MetricsEnabled bool
	Redis          RedisConfig
}

type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	origins := getEnvList("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		AdminUsers:     getEnvList("ADMIN_USERS", ""),
		RequireAuth:    getEnvBool("REQUIRE_AUTH", false),
		STUNURL:        getEnv("STUN_URL", "stun:stun.l.google.com:19302"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		Redis: RedisConfig{
			Enabled:    getEnvBool("REDIS_ENABLED", true),
			Host:       getEnv("REDIS_HOST", "localhost"),
			Port:       getEnv("REDIS_PORT", "6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         0,
			SessionTTL: getEnvDuration("SESSION_TTL", time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key, defaultValue string) []string {
	var list []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
