package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration the CLI loads at startup.
//
// API credentials are never stored in the file itself; the config names
// the environment variables that carry them.
type Config struct {
	Store struct {
		// Driver selects the checkpoint backend: memory, sqlite or mysql.
		Driver string `yaml:"driver"`

		// DSN is the sqlite file path or MySQL DSN. Ignored for memory.
		DSN string `yaml:"dsn"`
	} `yaml:"store"`

	GitHub struct {
		// TokenEnv names the environment variable holding the API token.
		TokenEnv string `yaml:"token_env"`

		// APIBase overrides the API endpoint, for GitHub Enterprise.
		APIBase string `yaml:"api_base"`
	} `yaml:"github"`

	LLM struct {
		// Provider selects the reviewer: openai, anthropic, google or mock.
		Provider string `yaml:"provider"`

		// Model overrides the provider's default model.
		Model string `yaml:"model"`

		// APIKeyEnv names the environment variable holding the API key.
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"llm"`

	Scanner struct {
		Bin    string `yaml:"bin"`
		Config string `yaml:"config"`

		// BanditBin, when set, runs bandit alongside semgrep and merges
		// the findings.
		BanditBin string `yaml:"bandit_bin"`
	} `yaml:"scanner"`

	Search struct {
		// Root is the source tree searched for call sites and definitions.
		Root string `yaml:"root"`

		RipgrepBin string `yaml:"rg_bin"`
	} `yaml:"search"`

	Reports struct {
		Dir string `yaml:"dir"`
	} `yaml:"reports"`

	Log struct {
		// JSON switches event output from text lines to JSONL.
		JSON bool `yaml:"json"`
	} `yaml:"log"`
}

// defaultAPIKeyEnvs maps providers to their conventional key variables.
var defaultAPIKeyEnvs = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// LoadConfig reads and validates the YAML configuration. A missing path
// yields the defaults: in-memory store, mock reviewer, current directory
// as the search root.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.GitHub.TokenEnv == "" {
		c.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "mock"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = defaultAPIKeyEnvs[c.LLM.Provider]
	}
	if c.Search.Root == "" {
		c.Search.Root = "."
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "reports"
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q (want memory, sqlite or mysql)", c.Store.Driver)
	}

	switch c.LLM.Provider {
	case "mock":
	case "openai", "anthropic", "google":
		if os.Getenv(c.LLM.APIKeyEnv) == "" {
			return fmt.Errorf("provider %q needs an API key in $%s", c.LLM.Provider, c.LLM.APIKeyEnv)
		}
	default:
		return fmt.Errorf("unknown llm provider %q (want openai, anthropic, google or mock)", c.LLM.Provider)
	}

	return nil
}

// GitHubToken resolves the configured token variable. Empty is allowed
// for public repositories.
func (c *Config) GitHubToken() string {
	return os.Getenv(c.GitHub.TokenEnv)
}

// LLMAPIKey resolves the configured provider key variable.
func (c *Config) LLMAPIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}
