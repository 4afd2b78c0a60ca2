package config

import (
	"log/slog"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Manager holds the application configuration and provides thread-safe access to it.
type Manager struct {
	mu sync.RWMutex
	v  *viper.Viper // viper instance holding configuration
}

// NewManager creates a new Manager from a viper instance.
func NewManager(v *viper.Viper) *Manager {
	return &Manager{v: v}
}

// getConfigUnsafe returns the current configuration without locking (internal use).
func (m *Manager) getConfigUnsafe() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg, viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, err := m.getConfigUnsafe()
	if err != nil {
		slog.Error("failed to unmarshal config", "error", err)
		// Return empty config as fallback
		return &Config{}
	}
	return cfg
}

// configToMap converts a Config to a map[string]any using YAML marshaling.
func configToMap(cfg *Config) (map[string]any, error) {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := yaml.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Update replaces the configuration held by the manager.
func (m *Manager) Update(config *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	configMap, err := configToMap(config)
	if err != nil {
		slog.Error("failed to convert config to map", "error", err)
		return
	}
	for key, value := range configMap {
		m.v.Set(key, value)
	}
}
