// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like OPENAI_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	for name, pc := range cfg.LLM.Providers {
		if pc.APIKey != "" {
			continue
		}
		envKey := strings.ToUpper(name) + "_API_KEY"
		if val := os.Getenv(envKey); val != "" {
			pc.APIKey = val
			cfg.LLM.Providers[name] = pc
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.MetricsAddress == "" {
		cfg.App.MetricsAddress = ":9090"
	}
	if cfg.App.MaxConcurrent == 0 {
		cfg.App.MaxConcurrent = 64
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.ProductIndex == "" {
		cfg.Database.Elasticsearch.ProductIndex = "products"
	}

	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = 30000
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}

	if cfg.Budget.DefaultMonthlyUSD == 0 {
		cfg.Budget.DefaultMonthlyUSD = 50
	}
	if len(cfg.Budget.Thresholds) == 0 {
		cfg.Budget.Thresholds = []int{80, 100}
	}
	if cfg.Budget.EvalInterval == 0 {
		cfg.Budget.EvalInterval = 60
	}

	if len(cfg.Handoff.Keywords) == 0 {
		cfg.Handoff.Keywords = []string{"human", "agent", "representative", "operator", "real person"}
	}
	if cfg.Handoff.ConfidenceTriggerCount == 0 {
		cfg.Handoff.ConfidenceTriggerCount = 3
	}
	if cfg.Handoff.LoopTriggerCount == 0 {
		cfg.Handoff.LoopTriggerCount = 3
	}
	if cfg.Handoff.EscalationAfter == 0 {
		cfg.Handoff.EscalationAfter = 4 * 60
	}
	if cfg.Handoff.WarningAfter == 0 {
		cfg.Handoff.WarningAfter = 20 * 60
	}
	if cfg.Handoff.AutoCloseAfter == 0 {
		cfg.Handoff.AutoCloseAfter = 24 * 60
	}
	if cfg.Handoff.ReopenWindow == 0 {
		cfg.Handoff.ReopenWindow = 7 * 24 * 60
	}
	if cfg.Handoff.ScanBatchSize == 0 {
		cfg.Handoff.ScanBatchSize = 100
	}

	if cfg.Hybrid.WindowMinutes == 0 {
		cfg.Hybrid.WindowMinutes = 120
	}

	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = 10000
	}
	if cfg.Catalog.RateLimitPerSec == 0 {
		cfg.Catalog.RateLimitPerSec = 5
	}
	if cfg.Catalog.RateLimitBurst == 0 {
		cfg.Catalog.RateLimitBurst = 10
	}
	if cfg.Catalog.AcquireTimeoutMS == 0 {
		cfg.Catalog.AcquireTimeoutMS = 5000
	}

	if cfg.Channels.SendTimeout == 0 {
		cfg.Channels.SendTimeout = 10000
	}

	if cfg.Schedulers.HandoffInterval == 0 {
		cfg.Schedulers.HandoffInterval = 30
	}
	if cfg.Schedulers.CleanupInterval == 0 {
		cfg.Schedulers.CleanupInterval = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.LLM.Primary == "" {
		return fmt.Errorf("llm.primary is required")
	}
	if _, ok := cfg.LLM.Providers[cfg.LLM.Primary]; !ok {
		return fmt.Errorf("llm.providers.%s is not configured", cfg.LLM.Primary)
	}
	if cfg.LLM.Backup != "" {
		if _, ok := cfg.LLM.Providers[cfg.LLM.Backup]; !ok {
			return fmt.Errorf("llm.providers.%s is not configured", cfg.LLM.Backup)
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetMinutes converts minutes from config to time.Duration
func GetMinutes(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
