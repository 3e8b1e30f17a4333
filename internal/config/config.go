// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	Consistency   ConsistencyConfig   `mapstructure:"consistency"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Profiles      ProfilesConfig      `mapstructure:"profiles"`
	Reminders     RemindersConfig     `mapstructure:"reminders"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ScoringConfig contains quality scoring thresholds and NLP provider settings.
type ScoringConfig struct {
	// EditorReviewThreshold routes reports scoring below it to editor review.
	EditorReviewThreshold float64   `mapstructure:"editor_review_threshold"`
	HighQualityThreshold  float64   `mapstructure:"high_quality_threshold"`
	LowQualityThreshold   float64   `mapstructure:"low_quality_threshold"`
	NLP                   NLPConfig `mapstructure:"nlp"`
}

// NLPConfig contains settings for the external NLP analysis provider.
type NLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  int    `mapstructure:"timeout"` // seconds
	Enabled  bool   `mapstructure:"enabled"`
}

// ConsistencyConfig contains inter-reviewer agreement analysis thresholds.
type ConsistencyConfig struct {
	// DivergenceThreshold is the per-criterion variance above which an area is divergent.
	DivergenceThreshold float64 `mapstructure:"divergence_threshold"`
	// ConsensusThreshold is the per-criterion variance below which an area is consensus.
	ConsensusThreshold float64 `mapstructure:"consensus_threshold"`
}

// QueueConfig contains analysis job queue and worker pool settings.
type QueueConfig struct {
	Workers              int `mapstructure:"workers"`
	PollInterval         int `mapstructure:"poll_interval"`          // seconds
	MaxRetries           int `mapstructure:"max_retries"`
	BackoffBase          int `mapstructure:"backoff_base"`           // seconds
	BackoffCap           int `mapstructure:"backoff_cap"`            // seconds
	BatchPriority        int `mapstructure:"batch_priority"`
	DefaultPriority      int `mapstructure:"default_priority"`
	StaleProcessingAfter int `mapstructure:"stale_processing_after"` // minutes
}

// ProfilesConfig contains reviewer quality profile aggregation settings.
type ProfilesConfig struct {
	HighScoreThreshold float64 `mapstructure:"high_score_threshold"`
	LowScoreThreshold  float64 `mapstructure:"low_score_threshold"`
	// TrendMargin is the minimum 30d-vs-90d average delta that counts as a trend.
	TrendMargin float64 `mapstructure:"trend_margin"`
}

// RemindersConfig contains invitation reminder scheduling settings.
type RemindersConfig struct {
	// OffsetsDays are days before the assignment due date at which reminders fire.
	OffsetsDays  []int `mapstructure:"offsets_days"`
	PollInterval int   `mapstructure:"poll_interval"` // minutes
}

// NotificationsConfig contains multi-channel notification delivery settings.
type NotificationsConfig struct {
	Email EmailConfig `mapstructure:"email"`
	SMS   SMSConfig   `mapstructure:"sms"`
	InApp InAppConfig `mapstructure:"in_app"`
	// SummaryRecipients are editor email addresses for the weekly quality summary.
	SummaryRecipients []string `mapstructure:"summary_recipients"`
}

// EmailConfig contains SMTP settings for the email channel.
type EmailConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	From          string `mapstructure:"from"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
}

// SMSConfig contains settings for the SMS gateway webhook channel.
type SMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Sender     string `mapstructure:"sender"`
	Timeout    int    `mapstructure:"timeout"` // seconds
}

// InAppConfig contains settings for the in-app notification channel.
type InAppConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SchedulerConfig contains cron job scheduling settings.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Timezone          string `mapstructure:"timezone"`
	MaintenanceTime   string `mapstructure:"maintenance_time"`    // "HH:MM" daily
	WeeklySummaryCron string `mapstructure:"weekly_summary_cron"` // cron expression
}

// MetricsConfig contains Prometheus metrics exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/review-quality-service/")
	}

	setDefaults(v)

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// NLP provider configuration
	_ = v.BindEnv("scoring.nlp.endpoint", "NLP_ENDPOINT")
	_ = v.BindEnv("scoring.nlp.api_key", "NLP_API_KEY")
	_ = v.BindEnv("scoring.nlp.enabled", "NLP_ENABLED")

	// Notification transports
	_ = v.BindEnv("notifications.email.host", "SMTP_HOST")
	_ = v.BindEnv("notifications.email.port", "SMTP_PORT")
	_ = v.BindEnv("notifications.email.user", "SMTP_USER")
	_ = v.BindEnv("notifications.email.password", "SMTP_PASS")
	_ = v.BindEnv("notifications.email.from", "SMTP_FROM")
	_ = v.BindEnv("notifications.email.skip_tls_verify", "SMTP_SKIP_TLS_VERIFY")
	_ = v.BindEnv("notifications.sms.webhook_url", "SMS_WEBHOOK_URL")
	_ = v.BindEnv("notifications.sms.sender", "SMS_SENDER")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.maintenance_time", "SCHEDULER_MAINTENANCE_TIME")
	_ = v.BindEnv("scheduler.weekly_summary_cron", "SCHEDULER_WEEKLY_SUMMARY_CRON")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults registers fallback values for optional tunables.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scoring.editor_review_threshold", 0.5)
	v.SetDefault("scoring.high_quality_threshold", 0.85)
	v.SetDefault("scoring.low_quality_threshold", 0.6)
	v.SetDefault("scoring.nlp.timeout", 30)
	v.SetDefault("consistency.divergence_threshold", 1.5)
	v.SetDefault("consistency.consensus_threshold", 0.5)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.poll_interval", 5)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.backoff_base", 30)
	v.SetDefault("queue.backoff_cap", 3600)
	v.SetDefault("queue.batch_priority", 3)
	v.SetDefault("queue.default_priority", 5)
	v.SetDefault("queue.stale_processing_after", 30)
	v.SetDefault("profiles.high_score_threshold", 0.85)
	v.SetDefault("profiles.low_score_threshold", 0.6)
	v.SetDefault("profiles.trend_margin", 0.05)
	v.SetDefault("reminders.offsets_days", []int{7, 3, 1})
	v.SetDefault("reminders.poll_interval", 15)
	v.SetDefault("notifications.in_app.enabled", true)
	v.SetDefault("notifications.email.port", 587)
	v.SetDefault("notifications.sms.timeout", 10)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.maintenance_time", "03:00")
	v.SetDefault("scheduler.weekly_summary_cron", "0 8 * * 1")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative")
	}
	if c.Queue.BackoffBase <= 0 || c.Queue.BackoffCap < c.Queue.BackoffBase {
		return fmt.Errorf("queue backoff settings invalid: base=%d cap=%d", c.Queue.BackoffBase, c.Queue.BackoffCap)
	}
	if c.Notifications.Email.Enabled && (c.Notifications.Email.Host == "" || c.Notifications.Email.From == "") {
		return fmt.Errorf("notifications.email.host and notifications.email.from are required when email is enabled")
	}
	if c.Notifications.SMS.Enabled && c.Notifications.SMS.WebhookURL == "" {
		return fmt.Errorf("notifications.sms.webhook_url is required when sms is enabled")
	}
	for _, d := range c.Reminders.OffsetsDays {
		if d < 1 {
			return fmt.Errorf("reminders.offsets_days entries must be at least 1 day before due date")
		}
	}
	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Backoff returns the retry delay for the given attempt (1-based), capped at BackoffCap.
func (c *QueueConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(c.BackoffBase) * time.Second
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= time.Duration(c.BackoffCap)*time.Second {
			return time.Duration(c.BackoffCap) * time.Second
		}
	}
	if maxDelay := time.Duration(c.BackoffCap) * time.Second; delay > maxDelay {
		return maxDelay
	}
	return delay
}

// NLPTimeout returns the NLP provider timeout as a duration.
func (c *NLPConfig) NLPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
