package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	ListenAddr      string
	EnableScheduler bool
	LogLevel        string
	LogFormat       string

	// Database
	DBPath           string
	DBMaxConnections int
	DBMaxIdle        time.Duration
	DBQueryRetries   int
	DBRetrySchedule  []time.Duration
	DBRetryMax       time.Duration

	// Inventory and state
	InventoryRefresh     time.Duration
	EventJournalCapacity int
	EventTTL             time.Duration
	RecentChecksCapacity int

	// Checks
	PollInterval     time.Duration
	DownThreshold    int
	UpThreshold      int
	CheckTimeout     time.Duration
	CheckConcurrency int

	// Alerts
	AlertMinInterval   time.Duration
	AlertWebhookURL    string
	AlertWebhookSecret string
}

// Load reads configuration from environment variables, after loading a
// .env file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	schedule, err := envMillisList("DB_RETRY_SCHEDULE_MS", []int{10000, 30000, 60000})
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:      getenv("LISTEN_ADDR", ":9105"),
		EnableScheduler: envBool("ENABLE_SCHEDULER", true),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "console"),

		DBPath:           getenv("DB_PATH", "./linkwatch.db"),
		DBMaxConnections: envInt("DB_MAX_CONNECTIONS", 5),
		DBMaxIdle:        envDurSecs("DB_MAX_IDLE_SECONDS", 300),
		DBQueryRetries:   envInt("DB_QUERY_RETRIES", 3),
		DBRetrySchedule:  schedule,
		DBRetryMax:       envDurMillis("DB_RETRY_MAX_MS", 60000),

		InventoryRefresh:     envDurSecs("INVENTORY_REFRESH_SECONDS", 60),
		EventJournalCapacity: envInt("EVENT_JOURNAL_CAPACITY", 1000),
		EventTTL:             envDurSecs("EVENT_TTL_SECONDS", 86400),
		RecentChecksCapacity: envInt("RECENT_CHECKS_CAPACITY", 50),

		PollInterval:     envDurSecs("POLL_SECONDS", 60),
		DownThreshold:    envInt("DOWN_THRESHOLD", 3),
		UpThreshold:      envInt("UP_THRESHOLD", 2),
		CheckTimeout:     envDurSecs("CHECK_TIMEOUT_SECONDS", 3),
		CheckConcurrency: envInt("CHECK_CONCURRENCY", 16),

		AlertMinInterval:   envDurSecs("ALERT_MIN_INTERVAL_SECONDS", 60),
		AlertWebhookURL:    getenv("ALERT_WEBHOOK_URL", ""),
		AlertWebhookSecret: getenv("ALERT_WEBHOOK_SECRET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with
func (c *Config) Validate() error {
	if c.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1, got %d", c.DBMaxConnections)
	}
	if c.DBQueryRetries < 1 {
		return fmt.Errorf("DB_QUERY_RETRIES must be at least 1, got %d", c.DBQueryRetries)
	}
	if c.DownThreshold < 1 || c.UpThreshold < 1 {
		return fmt.Errorf("DOWN_THRESHOLD and UP_THRESHOLD must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_SECONDS must be positive")
	}
	return nil
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}

func envDurMillis(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Millisecond
}

// envMillisList parses a comma separated list of millisecond values
func envMillisList(k string, def []int) ([]time.Duration, error) {
	raw := getenv(k, "")
	if raw == "" {
		out := make([]time.Duration, len(def))
		for i, ms := range def {
			out[i] = time.Duration(ms) * time.Millisecond
		}
		return out, nil
	}

	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ms, err := strconv.Atoi(part)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("%s: invalid delay %q", k, part)
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no delays given", k)
	}
	return out, nil
}
