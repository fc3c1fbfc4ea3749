package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/CamWatch/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. CAMWATCH_SERVER_PORT
const EnvPrefix = "CAMWATCH"

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	log := logger.WithComponent("config")

	// .env is optional; system env and the config file still apply without it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env")
	}

	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		actualConfigPath = filepath.Join(homeDir, ".config", "camwatch", "config.yaml")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(actualConfigPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.reload(); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", m.configPath).
		Str("default_source", m.config.Stream.DefaultSource).
		Msg("Config loaded")

	return m, nil
}

// reload decodes viper's merged view into a fresh Config
func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	return &cfg
}

// GetViper exposes the underlying viper instance for key-based access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Settings returns every key with its effective value
func (m *Manager) Settings() map[string]interface{} {
	return m.v.AllSettings()
}

// Set overrides one key in memory; call Save to persist it
func (m *Manager) Set(key string, value interface{}) error {
	previous := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.reload(); err != nil {
		m.v.Set(key, previous)
		return err
	}
	return nil
}

// SetPort overrides the server port for this process
func (m *Manager) SetPort(port int) error {
	return m.Set("server_port", port)
}

// SetLogLevel overrides the log level for this process
func (m *Manager) SetLogLevel(level string) error {
	return m.Set("log_level", level)
}

// SetDefaultSource overrides the address the loop starts with
func (m *Manager) SetDefaultSource(address string) error {
	return m.Set("stream.default_source", address)
}

// Save writes the effective settings to disk as YAML
func (m *Manager) Save() error {
	log := logger.WithComponent("config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	log.Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
