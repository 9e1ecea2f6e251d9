package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/addertuner/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// ADDERTUNER_TRANSCODER_SCALE=0.25.
const EnvPrefix = "ADDERTUNER"

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex

	watchers []func(*Config)
}

// DefaultConfigPath is $HOME/.config/addertuner/config.yaml
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "addertuner", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile selects
// the default path; a missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(actualConfigPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Defaults())

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	cfg, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Float64("scale", cfg.Transcoder.Scale).
		Uint32("ref_time", cfg.Transcoder.RefTime).
		Msg("Config loaded")

	return m, nil
}

// setDefaults registers every leaf of cfg as a viper default so that env
// overrides and partial files resolve against known keys.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range flatten(cfg) {
		v.SetDefault(key, value)
	}
}

// flatten turns cfg into dotted viper keys using its yaml field names
func flatten(cfg *Config) map[string]any {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil
	}
	out := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, val := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]any); ok {
				walk(key, child)
				continue
			}
			out[key] = val
		}
	}
	walk("", tree)
	return out
}

// decode unmarshals the merged viper state into a validated Config
func (m *Manager) decode() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// Params returns the current transcoder parameters
func (m *Manager) Params() Params {
	return m.Get().Transcoder
}

// Save validates the merged viper state and writes it to disk
func (m *Manager) Save() error {
	cfg, err := m.decode()
	if err != nil {
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update replaces the entire configuration and persists it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for key, value := range flatten(cfg) {
		m.v.Set(key, value)
	}
	return m.Save()
}

// UpdateParams replaces the transcoder parameters and persists them
func (m *Manager) UpdateParams(p Params) error {
	cfg := m.Get()
	cfg.Transcoder = p
	return m.Update(cfg)
}

// UpdatePlayer replaces the playback parameters and persists them
func (m *Manager) UpdatePlayer(p PlayerParams) error {
	cfg := m.Get()
	cfg.Player = p
	return m.Update(cfg)
}

// ResetParams restores the transcoder defaults
func (m *Manager) ResetParams() (Params, error) {
	p := DefaultParams()
	return p, m.UpdateParams(p)
}

// Watch reloads the file on change and hands the new configuration to fn.
// Invalid edits are logged and ignored.
func (m *Manager) Watch(fn func(*Config)) {
	m.mu.Lock()
	first := len(m.watchers) == 0
	m.watchers = append(m.watchers, fn)
	m.mu.Unlock()

	if !first {
		return
	}

	m.v.OnConfigChange(func(e fsnotify.Event) {
		log := logger.WithComponent("config")
		cfg, err := m.decode()
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring config change")
			return
		}

		m.mu.Lock()
		m.config = cfg
		watchers := append([]func(*Config){}, m.watchers...)
		m.mu.Unlock()

		log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("Config reloaded")
		for _, w := range watchers {
			c := *cfg
			w(&c)
		}
	})
	m.v.WatchConfig()
}

// GetViper exposes the underlying viper instance for key-level access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path to the configuration file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the directory containing the configuration file
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
