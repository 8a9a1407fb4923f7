package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir  = ".migclean"
	DefaultConfigFile = "config.yaml"
	DefaultDBFile     = "migclean.db"
	DefaultLogFile    = "audit.jsonl"
	DefaultRulesFile  = "rules.yaml"
	DefaultPacksDir   = "rules.d"
)

type Config struct {
	ConfigDir string          `yaml:"-"`
	DBPath    string          `yaml:"db_path"`
	LogPath   string          `yaml:"audit_log"`
	RulesPath string          `yaml:"rules"`
	PacksDir  string          `yaml:"packs_dir"`
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn error"`
	Execution ExecutionConfig `yaml:"execution"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
}

// ExecutionConfig bounds action handlers.
type ExecutionConfig struct {
	// UninstallTimeoutSeconds bounds a program uninstall. Default: 120.
	UninstallTimeoutSeconds int `yaml:"uninstall_timeout_seconds" validate:"gte=1,lte=3600"`
}

// AdvisorConfig selects the model behind the advisory loop.
type AdvisorConfig struct {
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv  string `yaml:"api_key_env" validate:"required"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0,lte=10"`
}

// Overrides are command-line values that win over the config file.
type Overrides struct {
	ConfigPath string
	DBPath     string
	RulesPath  string
	LogPath    string
	LogLevel   string
}

func defaults(configDir string) *Config {
	return &Config{
		ConfigDir: configDir,
		DBPath:    filepath.Join(configDir, DefaultDBFile),
		LogPath:   filepath.Join(configDir, DefaultLogFile),
		RulesPath: filepath.Join(configDir, DefaultRulesFile),
		PacksDir:  filepath.Join(configDir, DefaultPacksDir),
		LogLevel:  "info",
		Execution: ExecutionConfig{UninstallTimeoutSeconds: 120},
		Advisor: AdvisorConfig{
			Model:      "gpt-4o",
			APIKeyEnv:  "OPENAI_API_KEY",
			MaxRetries: 3,
		},
	}
}

// Load builds the configuration from defaults, ~/.migclean/config.yaml (or
// o.ConfigPath) and o, in that order. The config directory is created with
// 0700 permissions.
func Load(o Overrides) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(homeDir, DefaultConfigDir), o)
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(configDir string, o Overrides) (*Config, error) {
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}
	cfg := defaults(configDir)

	path := o.ConfigPath
	if path == "" {
		path = filepath.Join(configDir, DefaultConfigFile)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && o.ConfigPath == "":
		// No config file; defaults apply.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.RulesPath != "" {
		cfg.RulesPath = o.RulesPath
	}
	if o.LogPath != "" {
		cfg.LogPath = o.LogPath
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// APIKey reads the advisor key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.Advisor.APIKeyEnv)
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
