package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	apperrors "github.com/mycogrow/growroom-advisor/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	Env      string
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	OTEL     OTELConfig
	Analysis AnalysisConfig
	Paths    PathsConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	// DecisionTTL is how long the latest decision per room is kept.
	DecisionTTL time.Duration
}

// LLMConfig holds the chat-completion endpoint configuration
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// JSONRepair enables the last-resort jsonrepair parse strategy.
	JSONRepair bool
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// AnalysisConfig holds windowing, retrieval and policy constants for one analysis
type AnalysisConfig struct {
	DateWindowDays       int
	GrowthDayWindow      int
	EnvStatsDaysRange    int
	DeviceChangeLookback time.Duration
	TopK                 int
	// DeviceTypes limits device-change history to these device types; empty means all.
	DeviceTypes []string

	TemperatureTrendPct float64
	HumidityTrendPct    float64
	CO2TrendPct         float64

	HighConfidence float64
	LowConfidence  float64
}

// PathsConfig holds locations of static documents loaded at startup
type PathsConfig struct {
	DeviceSpec     string
	PromptTemplate string
	GoldenCases    string
}

// Load loads configuration from environment variables, reading a .env file first if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "production"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "mushroom_growroom"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:     getEnvAsBool("REDIS_ENABLED", false),
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnvAsInt("REDIS_PORT", 6379),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			DecisionTTL: getEnvAsDuration("REDIS_DECISION_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "qwen2.5:32b"),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 4096),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 10*time.Minute),
			JSONRepair:  getEnvAsBool("LLM_JSON_REPAIR", false),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "growroom-advisor"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Analysis: AnalysisConfig{
			DateWindowDays:       getEnvAsInt("ANALYSIS_DATE_WINDOW_DAYS", 7),
			GrowthDayWindow:      getEnvAsInt("ANALYSIS_GROWTH_DAY_WINDOW", 3),
			EnvStatsDaysRange:    getEnvAsInt("ANALYSIS_ENV_STATS_DAYS_RANGE", 1),
			DeviceChangeLookback: getEnvAsDuration("ANALYSIS_DEVICE_CHANGE_LOOKBACK", 7*24*time.Hour),
			TopK:                 getEnvAsInt("ANALYSIS_TOP_K", 3),
			DeviceTypes:          getEnvAsList("ANALYSIS_DEVICE_TYPES"),
			TemperatureTrendPct:  getEnvAsFloat("TREND_TEMPERATURE_PCT", 2),
			HumidityTrendPct:     getEnvAsFloat("TREND_HUMIDITY_PCT", 3),
			CO2TrendPct:          getEnvAsFloat("TREND_CO2_PCT", 5),
			HighConfidence:       getEnvAsFloat("CONFIDENCE_HIGH", 60),
			LowConfidence:        getEnvAsFloat("CONFIDENCE_LOW", 20),
		},
		Paths: PathsConfig{
			DeviceSpec:     getEnv("DEVICE_SPEC_PATH", "config/device_capabilities.yaml"),
			PromptTemplate: getEnv("PROMPT_TEMPLATE_PATH", ""),
			GoldenCases:    getEnv("GOLDEN_CASES_PATH", "config/golden_decisions.json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations no analysis could run with
func (c *Config) Validate() error {
	a := c.Analysis
	switch {
	case a.DateWindowDays < 0:
		return apperrors.NewValidationError("ANALYSIS_DATE_WINDOW_DAYS must be >= 0")
	case a.GrowthDayWindow < 0:
		return apperrors.NewValidationError("ANALYSIS_GROWTH_DAY_WINDOW must be >= 0")
	case a.EnvStatsDaysRange < 0:
		return apperrors.NewValidationError("ANALYSIS_ENV_STATS_DAYS_RANGE must be >= 0")
	case a.TopK <= 0:
		return apperrors.NewValidationError("ANALYSIS_TOP_K must be > 0")
	case a.LowConfidence < 0 || a.HighConfidence > 100 || a.LowConfidence > a.HighConfidence:
		return apperrors.NewValidationError(fmt.Sprintf(
			"confidence bands must satisfy 0 <= low <= high <= 100, got low=%v high=%v",
			a.LowConfidence, a.HighConfidence))
	}
	if c.LLM.MaxTokens <= 0 {
		return apperrors.NewValidationError("LLM_MAX_TOKENS must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return apperrors.NewValidationError("LLM_TIMEOUT must be > 0")
	}
	if c.Paths.DeviceSpec == "" {
		return apperrors.NewConfigError("DEVICE_SPEC_PATH is required", nil)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blank items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsDuration accepts Go duration strings ("90s", "10m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
