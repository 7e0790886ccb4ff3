package gemini

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Config holds the configuration for the Gemini backend.
type Config struct {
	// APIKeys are rotated when a key hits its quota.
	APIKeys []string `yaml:"api_keys"`
	// APIKey is shorthand for a single-entry APIKeys.
	APIKey string `yaml:"api_key"`

	BaseURL         string        `yaml:"base_url"`
	APIVersion      string        `yaml:"api_version"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     *float64      `yaml:"temperature"`
	Models          []string      `yaml:"models"`
}

// defaults sets default values for unset fields. GEMINI_API_KEY is used
// when no key is configured.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if len(c.Models) == 0 {
		c.Models = []string{"gemini-*"}
	}
	if c.BaseURL != "" && !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}
	if c.APIKey != "" {
		c.APIKeys = append([]string{c.APIKey}, c.APIKeys...)
		c.APIKey = ""
	}
	if len(c.APIKeys) == 0 {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.APIKeys = []string{key}
		}
	}
}

// keys returns the configured keys without blanks.
func (c *Config) keys() []string {
	out := make([]string, 0, len(c.APIKeys))
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (c *Config) validate() error {
	if len(c.keys()) == 0 {
		return fmt.Errorf("provider.gemini: api_keys is required (or set GEMINI_API_KEY)")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("provider.gemini: timeout must not be negative")
	}
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("provider.gemini: max_output_tokens must not be negative")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("provider.gemini: temperature must be within [0, 2]")
	}
	for _, pattern := range c.Models {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("provider.gemini: invalid model pattern %q", pattern)
		}
	}
	return nil
}
