package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// OpenRouter LLM
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	AIModel           string
	LLMMaxAttempts    int
	LLMTimeout        time.Duration
	LLMRetryDelay     time.Duration
	ToolLoopLimit     int

	// Clinic
	ClinicName     string
	ClinicAddress  string
	ClinicPhone    string
	ClinicTimezone string

	// Booking rules
	BookingHorizonDays int
	SlotGridMinutes    int
	CancelLeadHours    int
	ClinicClosingHour  int

	// Conversation
	ContextCharBudget int

	// Ingress
	DedupTTL        time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	LockWaitTimeout time.Duration

	// GREEN-API (WhatsApp)
	GreenAPIBaseURL    string
	GreenAPIInstanceID string
	GreenAPIToken      string

	// Telegram
	TelegramBotToken string

	// Google sync
	GoogleCredentialsPath string
	GoogleCalendarID      string
	GoogleSheetsID        string

	// Scheduler
	SchedulerInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:           getEnv("AI_MODEL", "openai/gpt-4o-mini"),
		LLMMaxAttempts:    getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
		LLMTimeout:        getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		LLMRetryDelay:     getEnvAsDuration("LLM_RETRY_DELAY", 2*time.Second),
		ToolLoopLimit:     getEnvAsInt("TOOL_LOOP_LIMIT", 5),

		ClinicName:     getEnv("CLINIC_NAME", "Smile Dental Clinic"),
		ClinicAddress:  getEnv("CLINIC_ADDRESS", "100 Abay Ave, Almaty"),
		ClinicPhone:    getEnv("CLINIC_PHONE", "+77001234567"),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "Asia/Almaty"),

		BookingHorizonDays: getEnvAsInt("BOOKING_HORIZON_DAYS", 60),
		SlotGridMinutes:    getEnvAsInt("SLOT_GRID_MINUTES", 30),
		CancelLeadHours:    getEnvAsInt("CANCEL_LEAD_HOURS", 2),
		ClinicClosingHour:  getEnvAsInt("CLINIC_CLOSING_HOUR", 18),

		ContextCharBudget: getEnvAsInt("CONTEXT_CHAR_BUDGET", 16000),

		DedupTTL:        getEnvAsDuration("DEDUP_TTL", 5*time.Minute),
		RateLimitMax:    getEnvAsInt("RATE_LIMIT_MAX", 20),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		LockWaitTimeout: getEnvAsDuration("LOCK_WAIT_TIMEOUT", 30*time.Second),

		GreenAPIBaseURL:    getEnv("GREEN_API_URL", "https://api.green-api.com"),
		GreenAPIInstanceID: getEnv("GREEN_API_INSTANCE_ID", ""),
		GreenAPIToken:      getEnv("GREEN_API_TOKEN", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		GoogleCredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", "google_credentials.json"),
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", ""),
		GoogleSheetsID:        getEnv("GOOGLE_SHEETS_ID", ""),

		SchedulerInterval: getEnvAsDuration("SCHEDULER_INTERVAL", 10*time.Minute),
	}
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
