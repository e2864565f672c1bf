package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port       string
	MongoURI   string
	RedisURL   string
	APIKey     string // shared key for the HTTP API; empty disables auth
	Production bool

	// Default scope for the batch CLI and single-tenant deployments
	TenantID  string
	UseCaseID string

	// Lifecycle policy
	AutoActivateAll bool

	// Classifier endpoint (OpenAI-compatible)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Mirror reconciliation
	ReconcileIntervalMinutes int

	// Path to the optional per-use-case YAML file
	UseCasesFile string
}

// UseCaseConfig carries per-use-case overrides loaded from YAML.
type UseCaseConfig struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	ClassifyPrompt string `yaml:"classify_prompt"`
	GroupingPrompt string `yaml:"grouping_prompt"`
}

// UseCasesFile is the root of the YAML use-case registry.
type UseCasesFile struct {
	UseCases []UseCaseConfig `yaml:"use_cases"`
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:       getEnv("PORT", "3001"),
		MongoURI:   getEnv("MONGODB_URI", "mongodb://localhost:27017/taxotree"),
		RedisURL:   getEnv("REDIS_URL", ""),
		APIKey:     getEnv("API_KEY", ""),
		Production: getEnv("ENVIRONMENT", "") == "production",

		TenantID:  getEnv("TENANT_ID", "default"),
		UseCaseID: getEnv("USE_CASE_ID", "default"),

		AutoActivateAll: getBoolEnv("AUTO_ACTIVATE_ALL", false),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),

		ReconcileIntervalMinutes: getIntEnv("RECONCILE_INTERVAL_MINUTES", 15),

		UseCasesFile: getEnv("USE_CASES_FILE", ""),
	}
}

// LoadUseCases loads the per-use-case overrides from a YAML file.
func LoadUseCases(filePath string) (*UseCasesFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read use cases file: %w", err)
	}

	var file UseCasesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse use cases YAML: %w", err)
	}

	return &file, nil
}

// FindUseCase returns the override for the given id, nil when none is defined.
func (f *UseCasesFile) FindUseCase(id string) *UseCaseConfig {
	if f == nil {
		return nil
	}
	for i := range f.UseCases {
		if f.UseCases[i].ID == id {
			return &f.UseCases[i]
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
