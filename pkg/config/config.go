// Package config loads engine configuration. All numeric thresholds
// (queue capacity, worker count, timeouts, retention, polling bounds)
// are configuration inputs, never hardcoded in the engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue"`
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`
	Files   FilesConfig   `mapstructure:"files" yaml:"files"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// QueueConfig bounds the pending job queue
type QueueConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// WorkersConfig sizes the worker pool
type WorkersConfig struct {
	Count         int           `mapstructure:"count" yaml:"count"`
	RenderTimeout time.Duration `mapstructure:"render_timeout" yaml:"render_timeout"`
	CancelGrace   time.Duration `mapstructure:"cancel_grace" yaml:"cancel_grace"`
}

// FilesConfig controls output retention
type FilesConfig struct {
	OutputDir     string        `mapstructure:"output_dir" yaml:"output_dir"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// JobsConfig bounds request validation
type JobsConfig struct {
	PriorityMin     int `mapstructure:"priority_min" yaml:"priority_min"`
	PriorityMax     int `mapstructure:"priority_max" yaml:"priority_max"`
	DefaultPriority int `mapstructure:"default_priority" yaml:"default_priority"`
}

// PollConfig holds client polling protocol defaults
type PollConfig struct {
	InitialInterval    time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval        time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	BackoffFactor      float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	ErrorBackoffFactor float64       `mapstructure:"error_backoff_factor" yaml:"error_backoff_factor"`
	ErrorLimit         int           `mapstructure:"error_limit" yaml:"error_limit"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Default returns the built-in defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Queue: QueueConfig{Capacity: 100},
		Workers: WorkersConfig{
			Count:         4,
			RenderTimeout: 5 * time.Minute,
			CancelGrace:   10 * time.Second,
		},
		Files: FilesConfig{
			OutputDir:     "./reportd_output",
			Retention:     7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Jobs: JobsConfig{PriorityMin: 1, PriorityMax: 10, DefaultPriority: 5},
		Poll: PollConfig{
			InitialInterval:    2 * time.Second,
			MaxInterval:        30 * time.Second,
			BackoffFactor:      1.5,
			ErrorBackoffFactor: 2.0,
			ErrorLimit:         5,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

// Load reads configuration from an optional file plus environment
// variables (prefix REPORTD, e.g. REPORTD_QUEUE_CAPACITY), layered
// over the defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reportd")
		v.SetConfigName("reportd")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("REPORTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.rate_limit_rps", d.Server.RateLimitRPS)
	v.SetDefault("server.rate_limit_burst", d.Server.RateLimitBurst)
	v.SetDefault("queue.capacity", d.Queue.Capacity)
	v.SetDefault("workers.count", d.Workers.Count)
	v.SetDefault("workers.render_timeout", d.Workers.RenderTimeout)
	v.SetDefault("workers.cancel_grace", d.Workers.CancelGrace)
	v.SetDefault("files.output_dir", d.Files.OutputDir)
	v.SetDefault("files.retention", d.Files.Retention)
	v.SetDefault("files.sweep_interval", d.Files.SweepInterval)
	v.SetDefault("jobs.priority_min", d.Jobs.PriorityMin)
	v.SetDefault("jobs.priority_max", d.Jobs.PriorityMax)
	v.SetDefault("jobs.default_priority", d.Jobs.DefaultPriority)
	v.SetDefault("poll.initial_interval", d.Poll.InitialInterval)
	v.SetDefault("poll.max_interval", d.Poll.MaxInterval)
	v.SetDefault("poll.backoff_factor", d.Poll.BackoffFactor)
	v.SetDefault("poll.error_backoff_factor", d.Poll.ErrorBackoffFactor)
	v.SetDefault("poll.error_limit", d.Poll.ErrorLimit)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)
}

// WriteDefault writes the default configuration as YAML, for
// `reportctl config init`
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
