package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Redis signaling transport.
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SignalingChannel string

	// Sweep cadence. Zero values fall back to engine defaults.
	SessionSweepInterval  time.Duration
	AgentReplyInterval    time.Duration
	StaleEvictionInterval time.Duration
	ReconcileInterval     time.Duration
	JobDispatchInterval   time.Duration
	JobInitialWait        time.Duration

	// Worker pool for outbound jobs.
	WorkerCount int
	WorkerQueue int

	// WebSocket agent console.
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		SignalingChannel: getEnv("SIGNALING_CHANNEL", "callcenter:events"),
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	config.RedisDB = redisDB

	seconds := func(key, def string) (time.Duration, error) {
		v, err := strconv.Atoi(getEnv(key, def))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(v) * time.Second, nil
	}

	if config.SessionSweepInterval, err = seconds("SESSION_SWEEP_INTERVAL", "5"); err != nil {
		return nil, err
	}
	if config.AgentReplyInterval, err = seconds("AGENT_REPLY_INTERVAL", "5"); err != nil {
		return nil, err
	}
	if config.StaleEvictionInterval, err = seconds("STALE_EVICTION_INTERVAL", "600"); err != nil {
		return nil, err
	}
	if config.ReconcileInterval, err = seconds("RECONCILE_INTERVAL", "10"); err != nil {
		return nil, err
	}
	if config.JobDispatchInterval, err = seconds("JOB_DISPATCH_INTERVAL", "3"); err != nil {
		return nil, err
	}
	if config.JobInitialWait, err = seconds("JOB_INITIAL_WAIT", "20"); err != nil {
		return nil, err
	}

	workerCount, err := strconv.Atoi(getEnv("WORKER_COUNT", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_COUNT: %w", err)
	}
	config.WorkerCount = workerCount

	workerQueue, err := strconv.Atoi(getEnv("WORKER_QUEUE", "64"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_QUEUE: %w", err)
	}
	config.WorkerQueue = workerQueue

	if config.WSReadTimeout, err = seconds("WS_READ_TIMEOUT", "60"); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = seconds("WS_WRITE_TIMEOUT", "10"); err != nil {
		return nil, err
	}

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
