package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/codeproxy/internal/security"
)

// Response formats for generation endpoints.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string           `yaml:"bind"`
	Auth            AuthConfig       `yaml:"auth"`
	CORS            CORSConfig       `yaml:"cors"`
	Endpoints       []EndpointConfig `yaml:"endpoints"`
	MaxBodyBytes    int              `yaml:"max_body_bytes"`
	ReadTimeout     time.Duration    `yaml:"read_timeout"`
	WriteTimeout    time.Duration    `yaml:"write_timeout"`
	ShutdownTimeout time.Duration    `yaml:"shutdown_timeout"`
}

// EndpointConfig describes one generation endpoint.
type EndpointConfig struct {
	Path   string `yaml:"path" json:"path"`
	Format string `yaml:"format" json:"format"`
	// WrapPrompt renders the prompt through the configured template.
	WrapPrompt bool `yaml:"wrap_prompt" json:"wrap_prompt"`
	// AllowModelOverride lets callers pass their own candidate list.
	AllowModelOverride bool `yaml:"allow_model_override" json:"allow_model_override"`
}

// CORSConfig configures the CORS headers set on every response.
type CORSConfig struct {
	AllowOrigin string `yaml:"allow_origin"`
}

// DefaultEndpoints mirrors the two historical handlers: a plain-text Lua
// endpoint and a JSON endpoint with prompt wrapping and model override.
func DefaultEndpoints() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/api/generate", Format: FormatText},
		{Path: "/api/generator", Format: FormatJSON, WrapPrompt: true, AllowModelOverride: true},
	}
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:3000"
	}
	if c.CORS.AllowOrigin == "" {
		c.CORS.AllowOrigin = "*"
	}
	if len(c.Endpoints) == 0 {
		c.Endpoints = DefaultEndpoints()
	}
	for i := range c.Endpoints {
		if c.Endpoints[i].Format == "" {
			c.Endpoints[i].Format = FormatText
		}
		c.Endpoints[i].Format = strings.ToLower(c.Endpoints[i].Format)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = security.DefaultMaxBodySize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// reservedPaths are served by the gateway itself.
var reservedPaths = map[string]bool{
	"/health":  true,
	"/status":  true,
	"/metrics": true,
}

func (c *Config) validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		switch {
		case !strings.HasPrefix(ep.Path, "/"):
			errs = append(errs, fmt.Errorf("endpoints[%d]: path %q must start with /", i, ep.Path))
		case reservedPaths[ep.Path] || strings.HasPrefix(ep.Path, "/api/admin"):
			errs = append(errs, fmt.Errorf("endpoints[%d]: path %q is reserved", i, ep.Path))
		case seen[ep.Path]:
			errs = append(errs, fmt.Errorf("endpoints[%d]: duplicate path %q", i, ep.Path))
		}
		seen[ep.Path] = true
		if ep.Format != FormatText && ep.Format != FormatJSON {
			errs = append(errs, fmt.Errorf("endpoints[%d]: format must be %q or %q, got %q", i, FormatText, FormatJSON, ep.Format))
		}
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("auth: basic_user and basic_pass must be set together"))
	}
	return errors.Join(errs...)
}

// AuthConfig configures authentication for operator endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
