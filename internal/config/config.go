package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment     string                `mapstructure:"environment"`
	LogLevel        string                `mapstructure:"log_level"`
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Cache           CacheConfig           `mapstructure:"cache"`
	Telegram        TelegramConfig        `mapstructure:"telegram"`
	Security        SecurityConfig        `mapstructure:"security"`
	Sentry          SentryConfig          `mapstructure:"sentry"`
	Telemetry       TelemetryConfig       `mapstructure:"telemetry"`
	Aggregator      AggregatorConfig      `mapstructure:"aggregator"`
	Recommendations RecommendationsConfig `mapstructure:"recommendations"`
	Analytics       AnalyticsConfig       `mapstructure:"analytics"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    string   `mapstructure:"read_timeout"`
	WriteTimeout   string   `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig controls the Redis snapshot cache.
type CacheConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SnapshotTTL string `mapstructure:"snapshot_ttl"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type SecurityConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTIssuer   string `mapstructure:"jwt_issuer"`
	// AdminAPIKey guards snapshot ingestion. Empty disables the admin routes.
	AdminAPIKey string `mapstructure:"admin_api_key" json:"-" yaml:"-"`
}

// SentryConfig defines settings for Sentry error reporting.
type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	Release          string  `mapstructure:"release"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// TelemetryConfig controls OpenTelemetry trace and log export.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Exporter is "otlp" or "stdout".
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate"`
	// ExportLogs forwards log entries over OTLP. Ignored for stdout.
	ExportLogs bool `mapstructure:"export_logs"`
}

// AggregatorConfig tunes per-domain fetching.
type AggregatorConfig struct {
	MaxRetries     int                  `mapstructure:"max_retries"`
	RetryDelay     string               `mapstructure:"retry_delay"`
	FetchTimeout   string               `mapstructure:"fetch_timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	SuccessThreshold int    `mapstructure:"success_threshold"`
	Timeout          string `mapstructure:"timeout"`
	MaxRequests      int    `mapstructure:"max_requests"`
}

// RecommendationsConfig tunes the recommendation engine.
type RecommendationsConfig struct {
	ConfidenceLevel   float64 `mapstructure:"confidence_level"`
	Iterations        int     `mapstructure:"iterations"`
	IssuedIndexSize   int     `mapstructure:"issued_index_size"`
	HistoryWeight     float64 `mapstructure:"history_weight"`
	HistorySaturation int     `mapstructure:"history_saturation"`
	ImpactSpread      float64 `mapstructure:"impact_spread"`
	Seed              uint64  `mapstructure:"seed"`
	DefaultMaxResults int     `mapstructure:"default_max_results"`
}

// AnalyticsConfig holds the domain analyzer thresholds.
type AnalyticsConfig struct {
	AnomalyThreshold      float64 `mapstructure:"anomaly_threshold"`
	StockoutProbability   float64 `mapstructure:"stockout_probability"`
	TargetTurnover        float64 `mapstructure:"target_turnover"`
	MarketingMaxLag       int     `mapstructure:"marketing_max_lag"`
	BottleneckUtilization float64 `mapstructure:"bottleneck_utilization"`
	IdleUtilization       float64 `mapstructure:"idle_utilization"`
	RunwayWarning         float64 `mapstructure:"runway_warning"`
	AtRiskChurn           float64 `mapstructure:"at_risk_churn"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind specific environment variables
	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("security.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}
	if err := viper.BindEnv("sentry.dsn", "SENTRY_DSN"); err != nil {
		return nil, fmt.Errorf("failed to bind SENTRY_DSN environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	durations := map[string]string{
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
		"cache.snapshot_ttl":                 c.Cache.SnapshotTTL,
		"aggregator.retry_delay":             c.Aggregator.RetryDelay,
		"aggregator.fetch_timeout":           c.Aggregator.FetchTimeout,
		"aggregator.circuit_breaker.timeout": c.Aggregator.CircuitBreaker.Timeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}

	if c.Aggregator.MaxRetries < 0 {
		return fmt.Errorf("aggregator.max_retries must not be negative, got %d", c.Aggregator.MaxRetries)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Exporter != "otlp" && c.Telemetry.Exporter != "stdout" {
			return fmt.Errorf("telemetry.exporter must be otlp or stdout, got %q", c.Telemetry.Exporter)
		}
		if r := c.Telemetry.SampleRate; r < 0 || r > 1 {
			return fmt.Errorf("telemetry.sample_rate must be in [0,1], got %v", r)
		}
	}
	if lvl := c.Recommendations.ConfidenceLevel; lvl <= 0 || lvl >= 1 {
		return fmt.Errorf("recommendations.confidence_level must be in (0,1), got %v", lvl)
	}
	return nil
}

// Duration parses a duration setting, returning fallback when it is empty
// or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "celebrum_insights")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Snapshot cache
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.snapshot_ttl", "5m")

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_issuer", "")
	viper.SetDefault("security.admin_api_key", "")

	// Sentry
	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.traces_sample_rate", 0.1)

	// OpenTelemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "otlp")
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.insecure", true)
	viper.SetDefault("telemetry.sample_rate", 0.1)
	viper.SetDefault("telemetry.export_logs", false)

	// Aggregator
	viper.SetDefault("aggregator.max_retries", 3)
	viper.SetDefault("aggregator.retry_delay", "100ms")
	viper.SetDefault("aggregator.fetch_timeout", "10s")
	viper.SetDefault("aggregator.circuit_breaker.enabled", true)
	viper.SetDefault("aggregator.circuit_breaker.failure_threshold", 5)
	viper.SetDefault("aggregator.circuit_breaker.success_threshold", 2)
	viper.SetDefault("aggregator.circuit_breaker.timeout", "30s")
	viper.SetDefault("aggregator.circuit_breaker.max_requests", 3)

	// Recommendations
	viper.SetDefault("recommendations.confidence_level", 0.95)
	viper.SetDefault("recommendations.iterations", 1000)
	viper.SetDefault("recommendations.issued_index_size", 10000)
	viper.SetDefault("recommendations.history_weight", 0.3)
	viper.SetDefault("recommendations.history_saturation", 10)
	viper.SetDefault("recommendations.impact_spread", 0.2)
	viper.SetDefault("recommendations.seed", 0)
	viper.SetDefault("recommendations.default_max_results", 20)

	// Analytics
	viper.SetDefault("analytics.anomaly_threshold", 2.5)
	viper.SetDefault("analytics.stockout_probability", 0.2)
	viper.SetDefault("analytics.target_turnover", 8)
	viper.SetDefault("analytics.marketing_max_lag", 3)
	viper.SetDefault("analytics.bottleneck_utilization", 0.85)
	viper.SetDefault("analytics.idle_utilization", 0.40)
	viper.SetDefault("analytics.runway_warning", 6)
	viper.SetDefault("analytics.at_risk_churn", 0.6)
}
