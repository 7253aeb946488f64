package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	HTTPAddr               string        `mapstructure:"http_addr"`
	ShutdownTimeoutSeconds int64         `mapstructure:"shutdown_timeout_seconds"`
	ShutdownTimeout        time.Duration `mapstructure:"-"`

	BBoltPath       string `mapstructure:"bbolt_path"`
	SubscribersFile string `mapstructure:"subscribers_file"`

	DeliveryTimeoutSeconds int64         `mapstructure:"delivery_timeout_seconds"`
	DeliveryTimeout        time.Duration `mapstructure:"-"`
	DeliveryParallelism    int           `mapstructure:"delivery_parallelism"`

	DedupeSchedule string `mapstructure:"dedupe_schedule"`

	AWSRegion    string `mapstructure:"aws_region"`
	GCPProjectID string `mapstructure:"gcp_project_id"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-news-mapper")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("shutdown_timeout_seconds", 10)
	v.SetDefault("bbolt_path", "./data/mapper.db")
	v.SetDefault("subscribers_file", "./configs/subscribers.yaml")
	v.SetDefault("delivery_timeout_seconds", 5)
	v.SetDefault("delivery_parallelism", 4)
	v.SetDefault("dedupe_schedule", "0 3 * * *") // daily at 03:00
	v.SetDefault("aws_region", "")
	v.SetDefault("gcp_project_id", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("invalid http_addr (must not be empty)")
	}
	if cfg.DeliveryTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid delivery_timeout_seconds (must be positive seconds)")
	}
	if cfg.ShutdownTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid shutdown_timeout_seconds (must be positive seconds)")
	}
	if cfg.DeliveryParallelism <= 0 {
		return nil, fmt.Errorf("invalid delivery_parallelism (must be positive)")
	}
	cfg.DeliveryTimeout = time.Duration(cfg.DeliveryTimeoutSeconds) * time.Second
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second

	return &cfg, nil
}
