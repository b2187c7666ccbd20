package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	DatabaseFile string
	LogLevel     string

	// S3 / minio
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool

	// OpenRouter
	OpenRouterAPIKey string
	OpenRouterModel  string

	// OCR fallback
	PdftoppmPath  string
	TesseractPath string
	OCRDPI        int
	OCRMaxPages   int

	// Upload limits and background processing
	MaxFileSize    int64
	ProcessTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseFile:      getEnv("DATABASE_FILE", "data/leases.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", "lease-documents"),
		S3UseSSL:          getEnv("S3_USE_SSL", "false") == "true",
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		PdftoppmPath:      getEnv("PDFTOPPM_PATH", "pdftoppm"),
		TesseractPath:     getEnv("TESSERACT_PATH", "tesseract"),
		OCRDPI:            getEnvInt("OCR_DPI", 300),
		OCRMaxPages:       getEnvInt("OCR_MAX_PAGES", 40),
		MaxFileSize:       20 * 1024 * 1024,
		ProcessTimeout:    getEnvDuration("PROCESS_TIMEOUT", 5*time.Minute),
	}

	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
