// Package config provides environment configuration for the support desk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreFirebase = "firebase"
	StoreMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	Env string

	// Telegram
	UserBotToken  string
	StaffBotToken string
	LogsChannelID int64
	StaffChatID   int64
	AdminUserIDs  []int64
	PollTimeout   time.Duration

	// Store
	StoreBackend                  string
	FirebaseDatabaseURL           string
	FirebaseServiceAccountKeyPath string

	// Tickets
	CounterMaxAttempts    int
	CounterBackoff        time.Duration
	TicketPageSize        int
	TicketListCacheTTL    time.Duration
	TicketDetailsCacheTTL time.Duration

	// Templates
	LanguagesDir    string
	DefaultLanguage string

	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	SummaryModel    string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("ENV", "production"),

		// Telegram
		UserBotToken:  getEnv("USER_BOT_TOKEN", ""),
		StaffBotToken: getEnv("STAFF_BOT_TOKEN", ""),
		LogsChannelID: getInt64Env("LOGS_CHANNEL_ID", 0),
		StaffChatID:   getInt64Env("STAFF_CHAT_ID", 0),
		AdminUserIDs:  getInt64ListEnv("ADMIN_USER_IDS"),
		PollTimeout:   getDurationEnv("POLL_TIMEOUT", 60*time.Second),

		// Store
		StoreBackend:                  strings.ToLower(getEnv("STORE_BACKEND", StoreFirebase)),
		FirebaseDatabaseURL:           getEnv("FIREBASE_DATABASE_URL", ""),
		FirebaseServiceAccountKeyPath: getEnv("FIREBASE_SERVICE_ACCOUNT_KEY_PATH", ""),

		// Tickets
		CounterMaxAttempts:    getIntEnv("COUNTER_MAX_ATTEMPTS", 3),
		CounterBackoff:        getDurationEnv("COUNTER_BACKOFF", 100*time.Millisecond),
		TicketPageSize:        getIntEnv("TICKET_PAGE_SIZE", 10),
		TicketListCacheTTL:    getDurationEnv("TICKET_LIST_CACHE_TTL", 5*time.Minute),
		TicketDetailsCacheTTL: getDurationEnv("TICKET_DETAILS_CACHE_TTL", 10*time.Minute),

		// Templates
		LanguagesDir:    getEnv("LANGUAGES_DIR", "./languages"),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),

		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		SummaryModel:    getEnv("SUMMARY_MODEL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if c.UserBotToken == "" {
		errs = append(errs, errors.New("USER_BOT_TOKEN is required"))
	}
	if c.StaffBotToken == "" {
		errs = append(errs, errors.New("STAFF_BOT_TOKEN is required"))
	}
	if c.LogsChannelID == 0 {
		errs = append(errs, errors.New("LOGS_CHANNEL_ID is required"))
	}

	switch c.StoreBackend {
	case StoreFirebase:
		if c.FirebaseDatabaseURL == "" {
			errs = append(errs, errors.New("FIREBASE_DATABASE_URL is required"))
		}
		if c.FirebaseServiceAccountKeyPath == "" {
			errs = append(errs, errors.New("FIREBASE_SERVICE_ACCOUNT_KEY_PATH is required"))
		} else if _, err := os.Stat(c.FirebaseServiceAccountKeyPath); err != nil {
			errs = append(errs, fmt.Errorf("FIREBASE_SERVICE_ACCOUNT_KEY_PATH: %w", err))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not supported", c.StoreBackend))
	}

	if c.CounterMaxAttempts < 1 {
		errs = append(errs, errors.New("COUNTER_MAX_ATTEMPTS must be at least 1"))
	}
	if c.TicketPageSize < 1 {
		errs = append(errs, errors.New("TICKET_PAGE_SIZE must be at least 1"))
	}
	return errors.Join(errs...)
}

// IsAdmin reports whether userID is listed in ADMIN_USER_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64ListEnv(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, i)
		}
	}
	return out
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
