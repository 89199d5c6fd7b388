package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Analysis AnalysisConfig
	Mappings MappingsConfig
	Staging  StagingConfig
}

// AnalysisConfig holds document-analysis provider configuration
type AnalysisConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

// MappingsConfig holds field-mapping registry configuration
type MappingsConfig struct {
	Dir         string
	DefaultPath string
	Strict      bool
}

// StagingConfig holds review-staging store configuration
type StagingConfig struct {
	DBPath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Endpoint:   getEnv("DOC_INTELLIGENCE_ENDPOINT", ""),
			APIKey:     getEnv("DOC_INTELLIGENCE_KEY", ""),
			APIVersion: getEnv("DOC_INTELLIGENCE_API_VERSION", "2023-07-31"),
			Timeout:    getEnvAsDuration("DOC_INTELLIGENCE_TIMEOUT", 60*time.Second),
		},
		Mappings: MappingsConfig{
			Dir:         getEnv("FIELD_MAPPINGS_DIR", "./fieldMappings"),
			DefaultPath: getEnv("FIELD_MAPPING_DEFAULT", ""),
			Strict:      getEnvAsBool("FIELD_MAPPINGS_STRICT", true),
		},
		Staging: StagingConfig{
			DBPath: getEnv("STAGING_DB_PATH", "./drafts.db"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Mappings.Dir == "" {
		return NewAppError("CONFIG_ERROR", "FIELD_MAPPINGS_DIR is required", ErrInvalidInput)
	}
	if c.Analysis.Endpoint != "" && c.Analysis.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "DOC_INTELLIGENCE_KEY is required when an endpoint is set", ErrInvalidInput)
	}
	return nil
}
