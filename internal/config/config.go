package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Provider holds the credentials and model identifier for one upstream LLM.
type Provider struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Config holds application configuration
type Config struct {
	Addr            string              `yaml:"addr"`
	DBPath          string              `yaml:"db_path"`
	StaticDir       string              `yaml:"static_dir"`
	DefaultProvider string              `yaml:"default_provider"`
	Providers       map[string]Provider `yaml:"providers"`
	Debug           bool                `yaml:"-"`
}

// envKeys maps provider names to the environment variable consulted when
// the config file leaves api_key empty.
var envKeys = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Load reads and validates the YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		Addr:   ":8000",
		DBPath: "chatgate.db",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	if cfg.DefaultProvider == "" {
		return nil, fmt.Errorf("default_provider not set")
	}
	if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default_provider %q is not a configured provider", cfg.DefaultProvider)
	}

	for name, p := range cfg.Providers {
		if p.APIKey == "" {
			if env := envKeys[name]; env != "" {
				p.APIKey = os.Getenv(env)
				cfg.Providers[name] = p
			}
		}
	}

	return cfg, nil
}
