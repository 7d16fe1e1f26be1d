// Package config loads, validates, and writes the agent's configuration:
// the three top-level sections named throughout the component design
// (agent, control_plane, data_plane) plus the two ambient blocks every
// long-lived service in this repository needs (logging, security).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration record consumed by the
// supervisor. Every field is mapstructure-tagged for viper and
// validate-tagged for struct-level validation.
type Config struct {
	Agent        AgentConfig        `mapstructure:"agent" yaml:"agent" validate:"required"`
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane" yaml:"control_plane" validate:"required"`
	DataPlane    DataPlaneConfig    `mapstructure:"data_plane" yaml:"data_plane" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging" validate:"required"`
	Security     SecurityConfig     `mapstructure:"security" yaml:"security" validate:"required"`
}

// AgentConfig names this process to itself and to the control server.
type AgentConfig struct {
	ID                    string   `mapstructure:"id" yaml:"id"`
	Name                  string   `mapstructure:"name" yaml:"name" validate:"required"`
	Tags                  []string `mapstructure:"tags" yaml:"tags"`
	HeartbeatIntervalSecs int      `mapstructure:"heartbeat_interval_seconds" yaml:"heartbeat_interval_seconds" validate:"min=1"`
	HTTPPort              int      `mapstructure:"http_port" yaml:"http_port" validate:"min=1,max=65535"`
	HTTPEnabled           bool     `mapstructure:"http_enabled" yaml:"http_enabled"`
	Version               string   `mapstructure:"version" yaml:"version"`

}

// ControlPlaneConfig is the polling/dispatch loop configuration.
type ControlPlaneConfig struct {
	Enabled               bool   `mapstructure:"enabled" yaml:"enabled"`
	ServerURL             string `mapstructure:"server_url" yaml:"server_url" validate:"required_if=Enabled true"`
	APIKey                string `mapstructure:"api_key" yaml:"api_key"`
	PollIntervalSeconds   int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds" validate:"min=1"`
	MaxConcurrentCommands int    `mapstructure:"max_concurrent_commands" yaml:"max_concurrent_commands" validate:"min=1"`
	MaxRetries            int    `mapstructure:"max_retries" yaml:"max_retries" validate:"min=0"`
	RetryDelayMs          int    `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms" validate:"min=0"`
	ExponentialBackoff    bool   `mapstructure:"exponential_backoff" yaml:"exponential_backoff"`
	CircuitBreakerThresh  uint32 `mapstructure:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold" validate:"min=1"`
}

// DataPlaneConfig is the collectors/exporters pipeline configuration.
type DataPlaneConfig struct {
	Enabled           bool            `mapstructure:"enabled" yaml:"enabled"`
	BufferSize        int             `mapstructure:"buffer_size" yaml:"buffer_size" validate:"min=1"`
	FlushIntervalSecs int             `mapstructure:"flush_interval_seconds" yaml:"flush_interval_seconds" validate:"min=1"`
	Collectors        []CollectorSpec `mapstructure:"collectors" yaml:"collectors" validate:"dive"`
	Exporters         []ExporterSpec  `mapstructure:"exporters" yaml:"exporters" validate:"dive"`
}

// CollectorSpec configures one named collector of a given Kind
// ("system", "log", "custom").
type CollectorSpec struct {
	Name          string            `mapstructure:"name" yaml:"name" validate:"required"`
	Kind          string            `mapstructure:"kind" yaml:"kind" validate:"required,oneof=system log custom"`
	Enabled       bool              `mapstructure:"enabled" yaml:"enabled"`
	IntervalSecs  int               `mapstructure:"interval_seconds" yaml:"interval_seconds" validate:"min=1"`
	Command       string            `mapstructure:"command" yaml:"command"`
	Args          []string          `mapstructure:"args" yaml:"args"`
	Labels        map[string]string `mapstructure:"labels" yaml:"labels"`
}

// ExporterSpec configures one named exporter of a given Kind
// ("http", "file").
type ExporterSpec struct {
	Name             string            `mapstructure:"name" yaml:"name" validate:"required"`
	Kind             string            `mapstructure:"kind" yaml:"kind" validate:"required,oneof=http file"`
	Enabled          bool              `mapstructure:"enabled" yaml:"enabled"`
	Endpoint         string            `mapstructure:"endpoint" yaml:"endpoint" validate:"required"`
	BatchSize        int               `mapstructure:"batch_size" yaml:"batch_size" validate:"min=1"`
	FlushIntervalSecs int              `mapstructure:"flush_interval_seconds" yaml:"flush_interval_seconds" validate:"min=1"`
	Headers          map[string]string `mapstructure:"headers" yaml:"headers"`
}

// LoggingConfig mirrors pkg/logger.Config, plus a separate audit-log
// sink so security decisions can be retained/rotated independently.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Output     string `mapstructure:"output" yaml:"output"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`

	AuditFilename   string `mapstructure:"audit_filename" yaml:"audit_filename"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb" yaml:"audit_max_size_mb"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups" yaml:"audit_max_backups"`
	AuditMaxAgeDays int    `mapstructure:"audit_max_age_days" yaml:"audit_max_age_days"`
}

// SecurityConfig is the allowlist/path-restriction policy.
type SecurityConfig struct {
	EnableCommandAllowlist bool     `mapstructure:"enable_command_allowlist" yaml:"enable_command_allowlist"`
	EnablePathRestriction  bool     `mapstructure:"enable_path_restriction" yaml:"enable_path_restriction"`
	AllowedCommands        []string `mapstructure:"allowed_commands" yaml:"allowed_commands"`
	AllowedPaths           []string `mapstructure:"allowed_paths" yaml:"allowed_paths"`
	MaxFileSizeBytes       int64    `mapstructure:"max_file_size_bytes" yaml:"max_file_size_bytes" validate:"min=1"`
}

var validate = validator.New()

// Load reads configPath (if non-empty) over a set of documented
// defaults, binds environment variables, unmarshals into Config, and
// validates the result. An absent file is not an error: defaults and
// environment variables still apply.
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Reload re-reads the config file viper already has open (used by the
// supervisor's SIGHUP handler) and returns the freshly unmarshalled,
// validated record without mutating global defaults again.
func Reload() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to re-read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate runs struct-tag validation over the whole config tree.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, col := range c.DataPlane.Collectors {
		if col.Kind == "custom" && col.Command == "" {
			return fmt.Errorf("collector %q: kind=custom requires a command", col.Name)
		}
	}
	return nil
}

// Default returns a fully-populated Config, used by `agent config
// generate`. setDefaults seeds only its scalar fields into viper; the
// control-plane server URL, the collector and exporter lists, and the
// audit_* logging fields are not seeded.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:                  "host-agent",
			HeartbeatIntervalSecs: 30,
			HTTPPort:              8080,
			HTTPEnabled:           true,
			Version:               "1.0.0",
		},
		ControlPlane: ControlPlaneConfig{
			Enabled:               true,
			ServerURL:             "https://control.example.com",
			PollIntervalSeconds:   10,
			MaxConcurrentCommands: 4,
			MaxRetries:            3,
			RetryDelayMs:          1000,
			ExponentialBackoff:    true,
			CircuitBreakerThresh:  5,
		},
		DataPlane: DataPlaneConfig{
			Enabled:           true,
			BufferSize:        1000,
			FlushIntervalSecs: 60,
			Collectors: []CollectorSpec{
				{Name: "system", Kind: "system", Enabled: true, IntervalSecs: 30},
				{Name: "log", Kind: "log", Enabled: true, IntervalSecs: 10},
			},
			Exporters: []ExporterSpec{
				{Name: "file", Kind: "file", Enabled: true, Endpoint: "/var/log/host-agent/metrics.jsonl", BatchSize: 100, FlushIntervalSecs: 60},
			},
		},
		Logging: LoggingConfig{
			Level:           "info",
			Format:          "json",
			Output:          "stdout",
			MaxSizeMB:       100,
			MaxBackups:      3,
			MaxAgeDays:      28,
			Compress:        true,
			AuditFilename:   "/var/log/host-agent/audit.log",
			AuditMaxSizeMB:  50,
			AuditMaxBackups: 5,
			AuditMaxAgeDays: 90,
		},
		Security: SecurityConfig{
			EnableCommandAllowlist: true,
			EnablePathRestriction:  true,
			AllowedCommands:        []string{"ls", "dir", "ps", "systemctl", "service"},
			AllowedPaths:           []string{"/tmp", "/var/log", `C:\temp`, `C:\logs`},
			MaxFileSizeBytes:       100 * 1024 * 1024,
		},
	}
}

// WriteDefault marshals Default() as YAML and writes it to path, for
// `agent config generate --output <path>`.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func setDefaults() {
	d := Default()

	viper.SetDefault("agent.name", d.Agent.Name)
	viper.SetDefault("agent.heartbeat_interval_seconds", d.Agent.HeartbeatIntervalSecs)
	viper.SetDefault("agent.http_port", d.Agent.HTTPPort)
	viper.SetDefault("agent.http_enabled", d.Agent.HTTPEnabled)
	viper.SetDefault("agent.version", d.Agent.Version)

	viper.SetDefault("control_plane.enabled", d.ControlPlane.Enabled)
	viper.SetDefault("control_plane.poll_interval_seconds", d.ControlPlane.PollIntervalSeconds)
	viper.SetDefault("control_plane.max_concurrent_commands", d.ControlPlane.MaxConcurrentCommands)
	viper.SetDefault("control_plane.max_retries", d.ControlPlane.MaxRetries)
	viper.SetDefault("control_plane.retry_delay_ms", d.ControlPlane.RetryDelayMs)
	viper.SetDefault("control_plane.exponential_backoff", d.ControlPlane.ExponentialBackoff)
	viper.SetDefault("control_plane.circuit_breaker_threshold", d.ControlPlane.CircuitBreakerThresh)

	viper.SetDefault("data_plane.enabled", d.DataPlane.Enabled)
	viper.SetDefault("data_plane.buffer_size", d.DataPlane.BufferSize)
	viper.SetDefault("data_plane.flush_interval_seconds", d.DataPlane.FlushIntervalSecs)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("logging.output", d.Logging.Output)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	viper.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	viper.SetDefault("logging.compress", d.Logging.Compress)

	viper.SetDefault("security.enable_command_allowlist", d.Security.EnableCommandAllowlist)
	viper.SetDefault("security.enable_path_restriction", d.Security.EnablePathRestriction)
	viper.SetDefault("security.allowed_commands", d.Security.AllowedCommands)
	viper.SetDefault("security.allowed_paths", d.Security.AllowedPaths)
	viper.SetDefault("security.max_file_size_bytes", d.Security.MaxFileSizeBytes)
}
