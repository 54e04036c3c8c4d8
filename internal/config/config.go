package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// State persistence
	StateBackend  string // "file" or "redis"
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Inventory snapshots
	ProductsCSV string
	FlavorsCSV  string

	// Language model (OpenAI-compatible chat completions endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Mercado Pago
	MPAccessToken string
	MPBaseURL     string
	MPSuccessURL  string
	MPFailureURL  string
	MPPendingURL  string
	MPTimeout     time.Duration

	// WhatsApp Cloud API
	WhatsAppBaseURL       string
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string

	// Side artifacts
	PaymentLinksDir   string
	WebhookArchiveDir string

	// Payment notification poller
	NotifyInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StateBackend:  getEnv("STATE_BACKEND", "file"),
		DataDir:       getEnv("STATE_DATA_DIR", "data/state"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		ProductsCSV: getEnv("PRODUCTS_CSV", "data/productos.csv"),
		FlavorsCSV:  getEnv("FLAVORS_CSV", "data/sabores.csv"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://models.inference.ai.azure.com"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o"),
		LLMTimeout: getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),

		MPAccessToken: getEnv("MERCADO_PAGO_ACCESS_TOKEN", ""),
		MPBaseURL:     getEnv("MERCADO_PAGO_BASE_URL", "https://api.mercadopago.com"),
		MPSuccessURL:  getEnv("MP_BACK_URL_SUCCESS", ""),
		MPFailureURL:  getEnv("MP_BACK_URL_FAILURE", ""),
		MPPendingURL:  getEnv("MP_BACK_URL_PENDING", ""),
		MPTimeout:     getEnvAsDuration("MERCADO_PAGO_TIMEOUT", 10*time.Second),

		WhatsAppBaseURL:       getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppToken:         getEnv("META_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),

		PaymentLinksDir:   getEnv("PAYMENT_LINKS_DIR", "data/payment_links"),
		WebhookArchiveDir: getEnv("WEBHOOK_ARCHIVE_DIR", "data/webhooks"),

		NotifyInterval: getEnvAsDuration("NOTIFY_INTERVAL", 5*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
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
