package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load reads a YAML file from the given path and returns a new Manager.
// If the file doesn't exist, creates a default configuration.
func Load(path string) (*Manager, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Automatically bind environment variables with HS_ prefix

	setViperDefaults(v)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Info("Config file not found, creating default configuration", "path", path)
		if err := v.SafeWriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return NewManager(v), nil
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return NewManager(v), nil
}

// setViperDefaults sets default configuration values using viper.SetDefault
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("server.show_routes", false)
	v.SetDefault("server.port", 3636)
	v.SetDefault("database.path", "./library.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.namespace", "analysis")
	v.SetDefault("queue.active_ttl", 3600)
	v.SetDefault("queue.completed_ttl", 86400)
	v.SetDefault("worker.poll_interval", 1.0)
	v.SetDefault("worker.stop_timeout", 30.0)
	v.SetDefault("lyrics.providers.lrclib.enabled", true)
	v.SetDefault("lyrics.providers.lyrics_ovh.enabled", true)
	v.SetDefault("lyrics.providers.genius.enabled", false)
	v.SetDefault("lyrics.providers.genius.token", nil)
	v.SetDefault("lyrics.cache_ttl", 604800)
	v.SetDefault("lyrics.negative_cache_ttl", 86400)
	v.SetDefault("lyrics.cache_max_age_days", 30)
	v.SetDefault("lyrics.http_timeout", 20)
	v.SetDefault("lyrics.genius_timeout", 15)
	v.SetDefault("lyrics.genius_retries", 2)
	v.SetDefault("ratelimit.window_size", 60)
	v.SetDefault("ratelimit.max_requests", 60)
	v.SetDefault("ratelimit.bucket_capacity", 10)
	v.SetDefault("ratelimit.bucket_refill_rate", 1.0)
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.base_delay", 2.0)
	v.SetDefault("retry.max_delay", 60.0)
	v.SetDefault("retry.jitter_factor", 0.1)
	v.SetDefault("janitor.interval", 3600)
	v.SetDefault("janitor.stale_jobs_h", 24)
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
}
