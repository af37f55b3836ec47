// Package config manages application configuration from a YAML file,
// CHATVAULT_-prefixed environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logger    LoggerConfig     `mapstructure:"logger"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Classify  ClassifierConfig `mapstructure:"classifier"`
	Gemini    GeminiConfig     `mapstructure:"gemini"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"      validate:"required"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  validate:"min=1s,max=10m"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s,max=5m"`
	CORSOrigins     []string      `mapstructure:"cors_origins"     validate:"required,min=1"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ClassifierConfig holds settings for the external content-origin classifier.
type ClassifierConfig struct {
	URL     string        `mapstructure:"url"     validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=1s,max=10m"`
}

// GeminiConfig holds settings for the tone-classification model client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	ModelName         string  `mapstructure:"model_name"          validate:"required"`
	Temperature       float32 `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxRetries        int     `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=0,max=300"`
}

// SchedulerConfig holds the scheduled task table.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables one named task on a cron schedule.
type TaskConfig struct {
	Schedule string `mapstructure:"schedule"`
	Enabled  bool   `mapstructure:"enabled"`
}

// LoadConfig loads and validates configuration from, in order of
// precedence: defaults, the YAML file at path, and CHATVAULT_* environment
// variables. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CHATVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		// Missing config file is fine, defaults and env cover everything.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":3001")
	v.SetDefault("server.request_timeout", time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{
		"https://discord.com",
		"https://ptb.discord.com",
		"http://localhost:3000",
	})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", "chatvault.db")

	v.SetDefault("classifier.url", "http://localhost:8000/predict")
	v.SetDefault("classifier.timeout", 2*time.Minute)

	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
}
