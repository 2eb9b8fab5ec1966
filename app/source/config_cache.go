package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		sourceName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "source", sourceName, "kind", config.Kind, "enabled", config.Settings.Enabled)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Config, error) {
	configFile := filepath.Join(cc.sourcesDir, sourceName+".yml")
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.Name = sourceName

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.Add(config)

	return config, nil
}

// Add registers a configuration directly, bypassing the sources directory.
func (cc *ConfigCache) Add(config *Config) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config
}

func (cc *ConfigCache) GetConfig(sourceName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[sourceName]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", sourceName)
	}
	return config, nil
}

// GetConfigs returns every loaded source ordered by name.
func (cc *ConfigCache) GetConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configs := make([]*Config, 0, len(cc.cache))
	for _, config := range cc.cache {
		configs = append(configs, config)
	}
	slices.SortFunc(configs, func(a, b *Config) int {
		return strings.Compare(a.Name, b.Name)
	})
	return configs
}

// GetEnabledConfigs returns enabled sources ordered by name.
func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabled := make([]*Config, 0, len(cc.cache))
	for _, config := range cc.cache {
		if config.Settings.Enabled {
			enabled = append(enabled, config)
		}
	}
	slices.SortFunc(enabled, func(a, b *Config) int {
		return strings.Compare(a.Name, b.Name)
	})
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Kind == "" {
		config.Kind = KindVK
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = 30
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	switch config.Kind {
	case KindVK:
		if strings.TrimPrefix(config.ID, "-") == "" {
			return fmt.Errorf("group id is required for vk sources")
		}
	case KindRSS:
		if config.URL == "" {
			return fmt.Errorf("feed URL is required for rss sources")
		}
	default:
		return fmt.Errorf("unknown source kind: %s", config.Kind)
	}

	if config.Settings.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	return nil
}
