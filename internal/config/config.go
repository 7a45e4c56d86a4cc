package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/pinboard/internal/storage"
	"github.com/haasonsaas/pinboard/pkg/models"
)

// Config is the main configuration structure for the pinboard bot.
type Config struct {
	Version   int             `yaml:"version"`
	Discord   DiscordConfig   `yaml:"discord"`
	Database  DatabaseConfig  `yaml:"database"`
	Pinboards PinboardsConfig `yaml:"pinboards"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type DiscordConfig struct {
	Token             string  `yaml:"token"`
	HomeGuildID       string  `yaml:"home_guild_id"`
	CommandPrefix     string  `yaml:"command_prefix"`
	RateLimit         float64 `yaml:"rate_limit"`
	RateBurst         int     `yaml:"rate_burst"`
	StateMessageLimit int     `yaml:"state_message_limit"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PinboardsConfig tunes the pin service.
type PinboardsConfig struct {
	PromptTimeout time.Duration `yaml:"prompt_timeout"`
	MaxPageSize   int           `yaml:"max_page_size"`
	// DefaultMigrationMode is stored on first start when no mode is set yet.
	DefaultMigrationMode string `yaml:"default_migration_mode"`
	AuditSchedule        string `yaml:"audit_schedule"`
	WarmCache            *bool  `yaml:"warm_cache"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig controls the Prometheus and health endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Load reads, merges and validates the configuration file at path.
// Environment variables are expanded and unknown fields are rejected.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = "!"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = string(storage.DialectSQLite)
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == string(storage.DialectSQLite) {
		cfg.Database.DSN = "pinboard.db"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Pinboards.PromptTimeout == 0 {
		cfg.Pinboards.PromptTimeout = 60 * time.Second
	}
	if cfg.Pinboards.MaxPageSize == 0 {
		cfg.Pinboards.MaxPageSize = 2000
	}
	if cfg.Pinboards.AuditSchedule == "" {
		cfg.Pinboards.AuditSchedule = "@every 10m"
	}
	if cfg.Pinboards.WarmCache == nil {
		enabled := true
		cfg.Pinboards.WarmCache = &enabled
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "pinboard"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Discord.Token) == "" {
		issues = append(issues, "discord.token is required")
	}
	if strings.TrimSpace(c.Discord.HomeGuildID) == "" {
		issues = append(issues, "discord.home_guild_id is required")
	}
	if strings.ContainsAny(c.Discord.CommandPrefix, " \t\n") {
		issues = append(issues, "discord.command_prefix must not contain whitespace")
	}
	if c.Discord.RateLimit < 0 || c.Discord.RateBurst < 0 {
		issues = append(issues, "discord.rate_limit and discord.rate_burst must not be negative")
	}

	if _, err := storage.ParseDialect(c.Database.Driver); err != nil {
		issues = append(issues, fmt.Sprintf("database.driver: %v", err))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		issues = append(issues, "database.dsn is required")
	}

	if c.Pinboards.PromptTimeout < 0 {
		issues = append(issues, "pinboards.prompt_timeout must be positive")
	}
	if c.Pinboards.MaxPageSize < 0 || c.Pinboards.MaxPageSize > 4096 {
		issues = append(issues, "pinboards.max_page_size must be between 1 and 4096")
	}
	if c.Pinboards.DefaultMigrationMode != "" {
		if _, err := models.ParseMigrationMode(c.Pinboards.DefaultMigrationMode); err != nil {
			issues = append(issues, fmt.Sprintf("pinboards.default_migration_mode: %v", err))
		}
	}
	if spec := strings.TrimSpace(c.Pinboards.AuditSchedule); spec != "" && spec != "off" {
		if _, err := cron.ParseStandard(spec); err != nil {
			issues = append(issues, fmt.Sprintf("pinboards.audit_schedule: %v", err))
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q is not json or text", c.Logging.Format))
	}

	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.Endpoint) == "" {
		issues = append(issues, "tracing.endpoint is required when tracing is enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// AuditEnabled reports whether the capacity audit should be scheduled.
func (c PinboardsConfig) AuditEnabled() bool {
	spec := strings.TrimSpace(c.AuditSchedule)
	return spec != "" && spec != "off"
}
