package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is used when neither the config file nor the environment
// names an API.
const DefaultAPIURL = "https://api.launchpad.dev"

// Config models config.yml.
type Config struct {
	APIURL   string   `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	APIKey   string   `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Defaults Defaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// Defaults are slugs used when a command omits them.
type Defaults struct {
	Organization string `yaml:"organization,omitempty" json:"organization,omitempty"`
	Project      string `yaml:"project,omitempty" json:"project,omitempty"`
	Environment  string `yaml:"environment,omitempty" json:"environment,omitempty"`
}

// Path returns the config file location. LAUNCHPAD_CONFIG wins, then
// $XDG_CONFIG_HOME/launchpad/config.yml, then ~/.config/launchpad/config.yml.
func Path() string {
	if p := os.Getenv("LAUNCHPAD_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "launchpad-config.yml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "launchpad", "config.yml")
}

// Default returns an empty config pointing at the hosted API.
func Default() *Config {
	return &Config{APIURL: DefaultAPIURL}
}

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run lp login", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil {
			return fmt.Errorf("config.api_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("config.api_url must be http or https, got %q", c.APIURL)
		}
		if u.Host == "" {
			return fmt.Errorf("config.api_url has no host")
		}
	}
	if strings.ContainsAny(c.APIKey, " \t\r\n") {
		return fmt.Errorf("config.api_key contains whitespace")
	}
	if c.Defaults.Environment != "" && c.Defaults.Project == "" {
		return fmt.Errorf("config.defaults.environment requires defaults.project")
	}
	if c.Defaults.Project != "" && c.Defaults.Organization == "" {
		return fmt.Errorf("config.defaults.project requires defaults.organization")
	}
	return nil
}

// Save writes the config with owner-only permissions since it holds the
// API key.
func Save(path string, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Redacted returns a copy with the API key masked, for printing.
func (c Config) Redacted() Config {
	c.APIKey = MaskKey(c.APIKey)
	return c
}

// MaskKey keeps the last four characters of a key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
