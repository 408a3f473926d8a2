package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Chat transport
	ChatWebhookToken string

	// NLU (Gemini)
	GeminiAPIKey  string
	GeminiModelID string

	// Clinic registry backend
	RegistryBaseURL string
	RegistryTimeout time.Duration

	// Identity store (Postgres)
	DatabaseURL string

	// Session store (Redis)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Dialog behavior
	SessionIdleTTL  time.Duration
	DateWindowDays  int
	UseMemoryStores bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ChatWebhookToken: getEnv("CHAT_WEBHOOK_TOKEN", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		RegistryBaseURL: strings.TrimRight(getEnv("REGISTRY_BASE_URL", ""), "/"),
		RegistryTimeout: getEnvAsDuration("REGISTRY_TIMEOUT", 20*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionIdleTTL:  getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
		DateWindowDays:  getEnvAsInt("DATE_WINDOW_DAYS", 14),
		UseMemoryStores: getEnvAsBool("USE_MEMORY_STORES", false),
	}
}

// Validate reports missing required settings. The process must not start
// without them; per-message handling assumes they are present.
func (c *Config) Validate() error {
	var missing []string
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.RegistryBaseURL == "" {
		missing = append(missing, "REGISTRY_BASE_URL")
	}
	if !c.UseMemoryStores {
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.DateWindowDays < 1 {
		return fmt.Errorf("config: DATE_WINDOW_DAYS must be positive, got %d", c.DateWindowDays)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
