package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all startup parameters. Values come from the environment
// (optionally seeded from a .env file); none are mutable at runtime.
type Config struct {
	Port   string
	DBPath string

	EnableHTTPS    bool
	AllowedOrigins []string
	MaxRequestSize int64

	LoginRateWindow       time.Duration
	LoginRateMax          int
	MaxConcurrentSessions int
	SessionIdleTimeout    time.Duration
	SweepInterval         time.Duration
}

// LoadConfig reads configuration from the environment, applying defaults
// for anything unset or unparsable.
func LoadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("📄 Loaded configuration from .env file")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "clinicbook.db"),
		EnableHTTPS:    os.Getenv("ENABLE_HTTPS") == "true",
		MaxRequestSize: 1024 * 1024, // 1MB

		LoginRateWindow:       getEnvDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
		LoginRateMax:          getEnvInt("LOGIN_RATE_MAX", 100),
		MaxConcurrentSessions: getEnvInt("MAX_CONCURRENT_SESSIONS", 3),
		SessionIdleTimeout:    getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
	}

	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("⚠️ Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("⚠️ Invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
