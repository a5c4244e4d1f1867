// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	// AI assist configuration
	ASSIST_PROVIDER         string // "gemini", "mistral" or "none"
	ASSIST_MATCHING_ENABLED bool   // default for the persisted toggle
	GEMINI_API_KEY          string
	ASSIST_MODEL_NAME       string
	MISTRAL_API_KEY         string
	MISTRAL_MODEL_NAME      string

	// Assist pricing (per 1M tokens in USD)
	ASSIST_INPUT_PRICE_PER_MILLION  float64
	ASSIST_OUTPUT_PRICE_PER_MILLION float64

	// Assist pacing
	ASSIST_RATE_LIMIT_TOKENS         int
	ASSIST_RATE_LIMIT_REFILL_SECONDS int

	// OCR fallback for pages without embedded text
	OCR_PROVIDER               string // "tesseract", "gemini", "mistral" or "none"
	OCR_MODEL_NAME             string
	MISTRAL_OCR_MODEL_NAME     string
	OCR_LANGUAGE               string
	OCR_DPI                    int
	ENABLE_IMAGE_PREPROCESSING bool

	// Matching behaviour
	RESERVE_ON_MATCH     bool
	SERVICE_PO_THRESHOLD int

	// Server Configuration
	PORT            string
	UPLOAD_DIR      string
	OUTPUT_DIR      string
	ALLOWED_ORIGINS string

	// MongoDB Configuration
	MONGO_URI         string
	MONGO_DB_NAME     string
	CACHE_TTL_SECONDS int

	// Optional GCS artifact store (local OUTPUT_DIR when empty)
	GCS_BUCKET string
	GCS_PREFIX string

	// Logging
	LOG_LEVEL       string
	LOG_DEVELOPMENT bool
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	MISTRAL_API_KEY = getEnv("MISTRAL_API_KEY", "")

	ASSIST_PROVIDER = strings.ToLower(getEnv("ASSIST_PROVIDER", defaultProvider()))
	ASSIST_MATCHING_ENABLED = getEnvBool("ASSIST_MATCHING_ENABLED", true)
	ASSIST_MODEL_NAME = getEnv("ASSIST_MODEL_NAME", "gemini-2.5-flash")
	MISTRAL_MODEL_NAME = getEnv("MISTRAL_MODEL_NAME", "mistral-small-latest")

	ASSIST_INPUT_PRICE_PER_MILLION = getEnvFloat("ASSIST_INPUT_PRICE_PER_MILLION", 3.0)
	ASSIST_OUTPUT_PRICE_PER_MILLION = getEnvFloat("ASSIST_OUTPUT_PRICE_PER_MILLION", 15.0)

	ASSIST_RATE_LIMIT_TOKENS = getEnvInt("ASSIST_RATE_LIMIT_TOKENS", 12)
	ASSIST_RATE_LIMIT_REFILL_SECONDS = getEnvInt("ASSIST_RATE_LIMIT_REFILL_SECONDS", 5)

	OCR_PROVIDER = strings.ToLower(getEnv("OCR_PROVIDER", "tesseract"))
	OCR_MODEL_NAME = getEnv("OCR_MODEL_NAME", "gemini-2.5-flash")
	MISTRAL_OCR_MODEL_NAME = getEnv("MISTRAL_OCR_MODEL_NAME", "mistral-ocr-latest")
	OCR_LANGUAGE = getEnv("OCR_LANGUAGE", "eng")
	OCR_DPI = getEnvInt("OCR_DPI", 300)
	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)

	RESERVE_ON_MATCH = getEnvBool("RESERVE_ON_MATCH", false)
	SERVICE_PO_THRESHOLD = getEnvInt("SERVICE_PO_THRESHOLD", 9000)

	PORT = getEnv("PORT", "8080")
	UPLOAD_DIR = getEnv("UPLOAD_DIR", "uploads")
	OUTPUT_DIR = getEnv("OUTPUT_DIR", "invoices")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "purchasing")
	CACHE_TTL_SECONDS = getEnvInt("CACHE_TTL_SECONDS", 300)

	GCS_BUCKET = getEnv("GCS_BUCKET", "")
	GCS_PREFIX = getEnv("GCS_PREFIX", "invoices/")

	LOG_LEVEL = getEnv("LOG_LEVEL", "info")
	LOG_DEVELOPMENT = getEnvBool("LOG_DEVELOPMENT", false)

	log.Println("✓ Configuration loaded successfully")
}

// AssistConfigured reports whether the selected assist provider has credentials.
func AssistConfigured() bool {
	switch ASSIST_PROVIDER {
	case "gemini":
		return GEMINI_API_KEY != ""
	case "mistral":
		return MISTRAL_API_KEY != ""
	}
	return false
}

func defaultProvider() string {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return "gemini"
	}
	if os.Getenv("MISTRAL_API_KEY") != "" {
		return "mistral"
	}
	return "none"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
