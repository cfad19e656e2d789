package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the call router configuration
type Config struct {
	// ARI settings
	ARIHost     string
	ARIPort     int
	ARIUsername string
	ARIPassword string
	AppName     string // Stasis application name channels are sent to

	// Store settings
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Admin API settings
	APIAddr string

	// Routing settings
	WrapUp        time.Duration // after-call work window, 0 disables
	AnswerTimeout time.Duration // how long an agent leg may ring

	LogLevel string
}

// Load loads configuration from a .env file (if present), command line
// flags, and environment variables. Environment variables win.
func Load() *Config {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &Config{}

	// Define flags
	flag.StringVar(&cfg.ARIHost, "ari-host", "localhost", "ARI host")
	flag.IntVar(&cfg.ARIPort, "ari-port", 8088, "ARI port")
	flag.StringVar(&cfg.ARIUsername, "ari-user", "asterisk", "ARI username")
	flag.StringVar(&cfg.ARIPassword, "ari-pass", "asterisk", "ARI password")
	flag.StringVar(&cfg.AppName, "app", "dialer", "Stasis application name")
	flag.StringVar(&cfg.RedisHost, "redis-host", "localhost", "Redis host")
	flag.IntVar(&cfg.RedisPort, "redis-port", 6379, "Redis port")
	flag.StringVar(&cfg.RedisPassword, "redis-pass", "", "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")
	flag.StringVar(&cfg.APIAddr, "api", ":8080", "Admin API listen address")

	var wrapUpSeconds int
	flag.IntVar(&wrapUpSeconds, "wrapup", 0, "Wrap-up seconds after each call (0 disables)")
	var answerSeconds int
	flag.IntVar(&answerSeconds, "answer-timeout", 15, "Agent leg ring timeout in seconds")

	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	// Override with environment variables if set
	if v := os.Getenv("ARI_HOST"); v != "" {
		cfg.ARIHost = v
	}
	if v := os.Getenv("ARI_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ARIPort = p
		}
	}
	if v := os.Getenv("ARI_USERNAME"); v != "" {
		cfg.ARIUsername = v
	}
	if v := os.Getenv("ARI_PASSWORD"); v != "" {
		cfg.ARIPassword = v
	}
	if v := os.Getenv("ARI_APP_NAME"); v != "" {
		cfg.AppName = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.RedisPort = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("WRAP_UP_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			wrapUpSeconds = n
		}
	}
	if v := os.Getenv("ANSWER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			answerSeconds = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.WrapUp = time.Duration(wrapUpSeconds) * time.Second
	cfg.AnswerTimeout = time.Duration(answerSeconds) * time.Second

	return cfg
}
