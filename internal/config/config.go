package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"hypocycle/internal/errors"
)

// Reasoning modes
const (
	ReasoningHeuristic = "heuristic"
	ReasoningLLM       = "llm"
)

// Execution modes
const (
	ExecutionSimulated = "simulated"
	ExecutionLive      = "live"
)

// Store drivers
const (
	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Reasoning ReasoningConfig
	Execution ExecutionConfig
	Cycle     CycleConfig
	Store     StoreConfig
	Server    ServerConfig
	LabSim    LabSimConfig
	Log       LogConfig
}

// ReasoningConfig selects and configures the hypothesis interpretation collaborator
type ReasoningConfig struct {
	Mode                string
	CatalogPath         string // optional YAML pattern catalog
	AnthropicKey        string
	Model               string
	BaseURL             string
	MaxTokens           int
	Temperature         float64
	Timeout             time.Duration
	FallbackToHeuristic bool
}

// ExecutionConfig selects the measurement strategy
type ExecutionConfig struct {
	Mode          string
	Seed          int64
	NoiseFraction float64
	LabURL        string
	Timeout       time.Duration
	RatePerSecond float64
	BatchSize     int
	AllOrNothing  bool
}

// CycleConfig holds pipeline-level settings
type CycleConfig struct {
	FollowUp     string
	AllowPartial bool
	Ordering     string // lexicographic | ordinal
	Concurrency  int
}

// StoreConfig holds persistence settings
type StoreConfig struct {
	Driver string
	DSN    string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// LabSimConfig holds lab automation simulator settings
type LabSimConfig struct {
	Port        string
	Seed        int64
	FailSamples []string // sample ids the simulator reports as failed
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // json | console
}

// DefaultFollowUp is chained after a supported p53 density cycle.
const DefaultFollowUp = "p53 accumulation is mediated by contact inhibition"

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Reasoning: *loadReasoningConfig(),
		Execution: *loadExecutionConfig(),
		Cycle:     *loadCycleConfig(),
		Store:     *loadStoreConfig(),
		Server:    *loadServerConfig(),
		LabSim:    *loadLabSimConfig(),
		Log:       *loadLogConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadReasoningConfig() *ReasoningConfig {
	return &ReasoningConfig{
		Mode:                strings.ToLower(getEnvOrDefault("REASONING_MODE", ReasoningHeuristic)),
		CatalogPath:         getEnvOrDefault("PATTERN_CATALOG", ""),
		AnthropicKey:        os.Getenv("ANTHROPIC_API_KEY"),
		Model:               getEnvOrDefault("LLM_MODEL", "claude-sonnet-4-5-20250929"),
		BaseURL:             getEnvOrDefault("ANTHROPIC_BASE_URL", ""),
		MaxTokens:           getEnvIntOrDefault("MAX_TOKENS", 4000),
		Temperature:         getEnvFloatOrDefault("TEMPERATURE", 0),
		Timeout:             getEnvDurationOrDefault("LLM_TIMEOUT", 60*time.Second),
		FallbackToHeuristic: getEnvBoolOrDefault("LLM_FALLBACK_HEURISTIC", true),
	}
}

func loadExecutionConfig() *ExecutionConfig {
	return &ExecutionConfig{
		Mode:          strings.ToLower(getEnvOrDefault("EXECUTION_MODE", ExecutionSimulated)),
		Seed:          getEnvInt64OrDefault("SIM_SEED", time.Now().UnixNano()),
		NoiseFraction: getEnvFloatOrDefault("SIM_NOISE_FRACTION", 0.1),
		LabURL:        getEnvOrDefault("LAB_URL", ""),
		Timeout:       getEnvDurationOrDefault("LAB_TIMEOUT", 30*time.Second),
		RatePerSecond: getEnvFloatOrDefault("LAB_RATE_PER_SECOND", 5),
		BatchSize:     getEnvIntOrDefault("LAB_BATCH_SIZE", 8),
		AllOrNothing:  getEnvBoolOrDefault("EXECUTION_ALL_OR_NOTHING", false),
	}
}

func loadCycleConfig() *CycleConfig {
	return &CycleConfig{
		FollowUp:     getEnvOrDefault("FOLLOW_UP_HYPOTHESIS", DefaultFollowUp),
		AllowPartial: getEnvBoolOrDefault("ALLOW_PARTIAL", false),
		Ordering:     strings.ToLower(getEnvOrDefault("TREND_ORDERING", "lexicographic")),
		Concurrency:  getEnvIntOrDefault("CYCLE_CONCURRENCY", 4),
	}
}

func loadStoreConfig() *StoreConfig {
	return &StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreNone)),
		DSN:    getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadLabSimConfig() *LabSimConfig {
	var fail []string
	for _, id := range strings.Split(os.Getenv("LABSIM_FAIL_SAMPLES"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			fail = append(fail, id)
		}
	}
	return &LabSimConfig{
		Port:        getEnvOrDefault("LABSIM_PORT", "8090"),
		Seed:        getEnvInt64OrDefault("LABSIM_SEED", 1),
		FailSamples: fail,
	}
}

func loadLogConfig() *LogConfig {
	return &LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

func validateConfig(config *Config) error {
	switch config.Reasoning.Mode {
	case ReasoningHeuristic:
	case ReasoningLLM:
		if config.Reasoning.AnthropicKey == "" {
			return errors.ConfigInvalid("ANTHROPIC_API_KEY is required when REASONING_MODE=llm")
		}
	default:
		return errors.ConfigInvalid("REASONING_MODE must be heuristic or llm, got " + config.Reasoning.Mode)
	}

	switch config.Execution.Mode {
	case ExecutionSimulated:
		if config.Execution.NoiseFraction < 0 || config.Execution.NoiseFraction >= 1 {
			return errors.ConfigInvalid("SIM_NOISE_FRACTION must be in [0, 1)")
		}
	case ExecutionLive:
		if config.Execution.LabURL == "" {
			return errors.ConfigInvalid("LAB_URL is required when EXECUTION_MODE=live")
		}
		if config.Execution.Timeout <= 0 {
			return errors.ConfigInvalid("LAB_TIMEOUT must be positive")
		}
	default:
		return errors.ConfigInvalid("EXECUTION_MODE must be simulated or live, got " + config.Execution.Mode)
	}

	switch config.Cycle.Ordering {
	case "lexicographic", "ordinal":
	default:
		return errors.ConfigInvalid("TREND_ORDERING must be lexicographic or ordinal")
	}
	if config.Cycle.Concurrency < 1 {
		return errors.ConfigInvalid("CYCLE_CONCURRENCY must be at least 1")
	}

	switch config.Store.Driver {
	case StoreNone:
	case StoreSQLite, StorePostgres:
		if config.Store.DSN == "" {
			return errors.ConfigInvalid("DATABASE_URL is required when STORE_DRIVER=" + config.Store.Driver)
		}
	default:
		return errors.ConfigInvalid("STORE_DRIVER must be none, sqlite or postgres")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
