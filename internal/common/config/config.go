// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Queue         QueueConfig        `mapstructure:"queue"`
	Worker        WorkerConfig       `mapstructure:"worker"`
	Extraction    ExtractionConfig   `mapstructure:"extraction"`
	Subscription  SubscriptionConfig `mapstructure:"subscription"`
	APIs          APIsConfig         `mapstructure:"apis"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production test"`
	// UserHashSalt is prepended to user ids before hashing them for storage.
	UserHashSalt string `mapstructure:"user_hash_salt"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"gt=0"`
	Database       string `mapstructure:"database" validate:"required"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections" validate:"gte=1"`
	MaxIdle        int    `mapstructure:"max_idle" validate:"gte=0"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address      string `mapstructure:"address" validate:"required"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db" validate:"gte=0"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// QueueConfig describes the Redis list used as the job queue.
type QueueConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	// Mode is "simple" (pop and forget) or "reliable" (claim, ack, requeue stale).
	Mode              string `mapstructure:"mode" validate:"oneof=simple reliable"`
	ProcessingSuffix  string `mapstructure:"processing_suffix"`
	Timeout           int    `mapstructure:"timeout_ms" validate:"gt=0"`
	VisibilityTimeout int    `mapstructure:"visibility_timeout_ms"`
	ReapInterval      int    `mapstructure:"reap_interval_ms"`
}

// WorkerConfig holds the poll loop and pipeline settings.
type WorkerConfig struct {
	Concurrency               int      `mapstructure:"concurrency" validate:"gte=1"`
	PollInterval              int      `mapstructure:"poll_interval_ms" validate:"gt=0"`
	MaxIdleBackoff            int      `mapstructure:"max_idle_backoff_ms" validate:"gtefield=PollInterval"`
	ErrorBackoff              int      `mapstructure:"error_backoff_ms" validate:"gt=0"`
	JobTimeout                int      `mapstructure:"job_timeout_ms" validate:"gt=0"`
	ShutdownGrace             int      `mapstructure:"shutdown_grace_ms" validate:"gt=0"`
	HistoryLimit              int      `mapstructure:"history_limit" validate:"gte=0"`
	MaxConsecutiveInfraErrors int      `mapstructure:"max_consecutive_infra_errors" validate:"gte=1"`
	GatedKinds                []string `mapstructure:"gated_kinds" validate:"dive,oneof=chat horoscope moon_phase cosmic_weather"`
	TrialUserPrefix           string   `mapstructure:"trial_user_prefix"`
	PersistBlockedNotice      bool     `mapstructure:"persist_blocked_notice"`
	SystemPrompt              string   `mapstructure:"system_prompt"`
}

type ExtractionConfig struct {
	// Policy is "full_text" or "truncate_at_insight".
	Policy        string `mapstructure:"policy" validate:"oneof=full_text truncate_at_insight"`
	ContextWindow int    `mapstructure:"context_window" validate:"gt=0"`
	// DeckPath overrides the embedded deck when set.
	DeckPath string `mapstructure:"deck_path"`
}

type SubscriptionConfig struct {
	// Store is "redis" or "memory".
	Store               string   `mapstructure:"store" validate:"oneof=redis memory"`
	CacheTTL            int      `mapstructure:"cache_ttl_ms" validate:"gt=0"`
	MemoryCacheSize     int      `mapstructure:"memory_cache_size" validate:"gte=1"`
	AcceptedStatuses    []string `mapstructure:"accepted_statuses" validate:"min=1"`
	InvalidationChannel string   `mapstructure:"invalidation_channel"`
	WebhookSecret       string   `mapstructure:"webhook_secret"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL    string `mapstructure:"base_url" validate:"required,url"`
		APIKey     string `mapstructure:"api_key"`
		ClientName string `mapstructure:"client_name"`
		Timeout    int    `mapstructure:"timeout_ms" validate:"gt=0"`
		MaxRetries int    `mapstructure:"max_retries" validate:"gte=0"`
	} `mapstructure:"genai"`

	Billing struct {
		BaseURL string `mapstructure:"base_url" validate:"required,url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout_ms" validate:"gt=0"`
	} `mapstructure:"billing"`
}

// NotificationConfig holds settings for billing notices.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn" validate:"required_if=Enabled true"`
	} `mapstructure:"sns"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address" validate:"required"`
	ReadTimeout  int    `mapstructure:"read_timeout_ms"`
	WriteTimeout int    `mapstructure:"write_timeout_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output"`
}
