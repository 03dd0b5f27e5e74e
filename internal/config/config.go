package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/configcache"
)

const (
	defaultStatWarnInterval = time.Minute
	testEnvironment         = "test"
)

// Config aggregates the command settings resolved from multiple sources.
type Config struct {
	BaseName         string
	EnvVar           string
	Environment      string
	LogLevel         string
	WatchInterval    time.Duration
	StatWarnInterval time.Duration
}

// yamlConfig represents the YAML settings file structure.
type yamlConfig struct {
	BaseName         string `yaml:"base_name"`
	EnvVar           string `yaml:"env_var"`
	Environment      string `yaml:"environment"`
	LogLevel         string `yaml:"log_level"`
	WatchInterval    string `yaml:"watch_interval"`
	StatWarnInterval string `yaml:"stat_warn_interval"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile    string
	BaseName      *string
	EnvVar        *string
	Environment   *string
	LogLevel      *string
	WatchInterval *time.Duration
}

// Load resolves the settings from all sources with precedence:
// CLI flags > Environment variables > YAML settings > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML settings: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, err
		}
	}

	applyEnvConfig(&cfg)

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if cfg.EnvironmentTag() == testEnvironment {
			cfg.LogLevel = "debug"
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// EnvironmentTag returns the explicit environment, or the value of EnvVar.
func (c Config) EnvironmentTag() string {
	if c.Environment != "" {
		return c.Environment
	}
	return strings.TrimSpace(os.Getenv(c.EnvVar))
}

// CacheOptions translates the settings into configcache options.
func (c Config) CacheOptions() []configcache.Option {
	opts := []configcache.Option{
		configcache.WithBaseName(c.BaseName),
		configcache.WithEnvVar(c.EnvVar),
		configcache.WithStatWarnInterval(c.StatWarnInterval),
	}
	if c.Environment != "" {
		env := c.Environment
		opts = append(opts, configcache.WithEnvironment(func() string { return env }))
	}
	return opts
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		BaseName:         configcache.DefaultBaseName,
		EnvVar:           configcache.DefaultEnvVar,
		StatWarnInterval: defaultStatWarnInterval,
	}
}

// loadFromFile loads settings from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML settings to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.BaseName != "" {
		cfg.BaseName = yamlCfg.BaseName
	}

	if yamlCfg.EnvVar != "" {
		cfg.EnvVar = yamlCfg.EnvVar
	}

	if yamlCfg.Environment != "" {
		cfg.Environment = yamlCfg.Environment
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	if yamlCfg.WatchInterval != "" {
		d, err := time.ParseDuration(yamlCfg.WatchInterval)
		if err != nil {
			return fmt.Errorf("parse watch_interval: %w", err)
		}
		cfg.WatchInterval = d
	}

	if yamlCfg.StatWarnInterval != "" {
		d, err := time.ParseDuration(yamlCfg.StatWarnInterval)
		if err != nil {
			return fmt.Errorf("parse stat_warn_interval: %w", err)
		}
		cfg.StatWarnInterval = d
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if name := strings.TrimSpace(os.Getenv("CONFIGCACHE_BASE_NAME")); name != "" {
		cfg.BaseName = name
	}

	if envVar := strings.TrimSpace(os.Getenv("CONFIGCACHE_ENV_VAR")); envVar != "" {
		cfg.EnvVar = envVar
	}

	if env := strings.TrimSpace(os.Getenv("CONFIGCACHE_ENV")); env != "" {
		cfg.Environment = env
	}

	if level := strings.TrimSpace(os.Getenv("CONFIGCACHE_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if interval := strings.TrimSpace(os.Getenv("CONFIGCACHE_WATCH_INTERVAL")); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.WatchInterval = d
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.BaseName != nil && *overrides.BaseName != "" {
		cfg.BaseName = *overrides.BaseName
	}

	if overrides.EnvVar != nil && *overrides.EnvVar != "" {
		cfg.EnvVar = *overrides.EnvVar
	}

	if overrides.Environment != nil && *overrides.Environment != "" {
		cfg.Environment = *overrides.Environment
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.WatchInterval != nil {
		cfg.WatchInterval = *overrides.WatchInterval
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.BaseName == "" {
		return fmt.Errorf("base name cannot be empty")
	}
	if cfg.EnvVar == "" {
		return fmt.Errorf("environment variable name cannot be empty")
	}
	if cfg.WatchInterval < 0 {
		return fmt.Errorf("watch interval must be >= 0")
	}
	if cfg.StatWarnInterval < 0 {
		return fmt.Errorf("stat warn interval must be >= 0")
	}
	return nil
}
