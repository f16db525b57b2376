package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string // PostgreSQL for emails, questions, FAQ groups and jobs
	Version     string
	LogLevel    string

	// OpenAI / Azure OpenAI
	OpenAIKey                      string
	AzureOpenAIKey                 string
	AzureOpenAIEndpoint            string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	CapabilityTimeout              int // per-call timeout for extraction/embedding/synthesis, seconds

	// Mining pipeline
	ConnectedAccounts   []string // business mailbox addresses; mail from these is outbound
	SimilarityThreshold float64  // cosine threshold for joining an FAQ group
	BatchSize           int      // max emails per processing job
	EmbeddingDimensions int      // expected embedding vector length

	// Qdrant centroid index (optional; the engine scans SQL rows when unset)
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string

	// Notifications
	SendGridAPIKey string // SendGrid API key for job completion notifications
	SupportEmail   string // address that receives completion notifications

	// Mailbox import jobs
	ImportNamespace string // Kubernetes namespace for mailbox import jobs
	ImportImage     string // container image for the import job
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		OpenAIKey:                      os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIKey:                 os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		CapabilityTimeout:              getEnvInt("CAPABILITY_TIMEOUT", 30),

		ConnectedAccounts:   getEnvList("CONNECTED_ACCOUNTS"),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.85),
		BatchSize:           getEnvInt("PROCESSING_BATCH_SIZE", 200),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),

		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "faq_group_centroids"),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		SupportEmail:   os.Getenv("SUPPORT_EMAIL"),

		ImportNamespace: getEnv("IMPORT_JOB_NAMESPACE", "faqminer"),
		ImportImage:     os.Getenv("MAILBOX_IMPORT_IMAGE"),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI is fully configured
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIKey != "" && c.AzureOpenAIEndpoint != ""
}

// HasOpenAIFallback reports whether the OpenAI platform key is configured
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// UseQdrant reports whether the qdrant centroid index is configured
func (c *Config) UseQdrant() bool {
	return c.QdrantHost != ""
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float with a default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable as a trimmed, lowercased slice
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "faqminer").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
