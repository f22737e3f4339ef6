// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	LLM           LLMConfig          `mapstructure:"llm"`
	Budget        BudgetConfig       `mapstructure:"budget"`
	Handoff       HandoffConfig      `mapstructure:"handoff"`
	Hybrid        HybridConfig       `mapstructure:"hybrid"`
	Catalog       CatalogConfig      `mapstructure:"catalog"`
	Schedulers    SchedulerConfig    `mapstructure:"schedulers"`
	Channels      ChannelConfig      `mapstructure:"channels"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name           string `mapstructure:"name"`
	Version        string `mapstructure:"version"`
	Environment    string `mapstructure:"environment"`
	MetricsAddress string `mapstructure:"metrics_address"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"` // in-flight turns across conversations
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	ProductIndex string   `mapstructure:"product_index"`
}

// --- LLM Provider Config ---

// ProviderConfig holds the settings for a single LLM backend.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type LLMConfig struct {
	Primary        string                    `mapstructure:"primary"`
	Backup         string                    `mapstructure:"backup"`
	RequestTimeout int                       `mapstructure:"request_timeout"` // milliseconds
	Temperature    float32                   `mapstructure:"temperature"`
	MaxTokens      int                       `mapstructure:"max_tokens"`
	Providers      map[string]ProviderConfig `mapstructure:"providers"`
}

type BudgetConfig struct {
	DefaultMonthlyUSD float64 `mapstructure:"default_monthly_usd"`
	Thresholds        []int   `mapstructure:"thresholds"`    // percent, e.g. [80, 100]
	EvalInterval      int     `mapstructure:"eval_interval"` // minutes
}

type HandoffConfig struct {
	Keywords               []string `mapstructure:"keywords"`
	ConfidenceTriggerCount int      `mapstructure:"confidence_trigger_count"`
	LoopTriggerCount       int      `mapstructure:"loop_trigger_count"`
	EscalationAfter        int      `mapstructure:"escalation_after"` // minutes
	WarningAfter           int      `mapstructure:"warning_after"`    // minutes
	AutoCloseAfter         int      `mapstructure:"auto_close_after"` // minutes
	ReopenWindow           int      `mapstructure:"reopen_window"`    // minutes
	ScanBatchSize          int      `mapstructure:"scan_batch_size"`
}

type HybridConfig struct {
	WindowMinutes int `mapstructure:"window_minutes"`
}

type CatalogConfig struct {
	CommerceBaseURL  string  `mapstructure:"commerce_base_url"`
	Timeout          int     `mapstructure:"timeout"` // milliseconds
	RateLimitPerSec  float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
	AcquireTimeoutMS int     `mapstructure:"acquire_timeout_ms"`
}

type SchedulerConfig struct {
	HandoffInterval int `mapstructure:"handoff_interval"` // minutes
	CleanupInterval int `mapstructure:"cleanup_interval"` // minutes
}

// ChannelConfig maps messaging channels to their outbound webhook endpoints.
type ChannelConfig struct {
	Webhooks       map[string]string `mapstructure:"webhooks"`
	DefaultWebhook string            `mapstructure:"default_webhook"`
	SendTimeout    int               `mapstructure:"send_timeout"` // milliseconds
}

// NotificationConfig holds settings for operator alerting.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		Operator  string `mapstructure:"operator"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Operator string `mapstructure:"operator"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
