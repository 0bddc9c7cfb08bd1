package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/livetemplate/resultplay/internal/security"
)

// FileName is the configuration file looked up in the served directory.
const FileName = "resultplay.yaml"

// Config represents the resultplay configuration
type Config struct {
	Title      string           `yaml:"title"`
	PublicURL  string           `yaml:"public_url,omitempty"` // Base used for share links outside a browser session
	Server     ServerConfig     `yaml:"server"`
	Docs       DocsConfig       `yaml:"docs"`
	Playground PlaygroundConfig `yaml:"playground"`
	Formatter  FormatterConfig  `yaml:"formatter"`
	API        *APIConfig       `yaml:"api,omitempty"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port" validate:"min=0,max=65535"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// DocsConfig holds documentation-site configuration
type DocsConfig struct {
	Dir       string `yaml:"dir"`        // Directory with .md pages, relative to the served directory
	HotReload bool   `yaml:"hot_reload"` // Re-discover pages when files change
}

// PlaygroundConfig holds the playground session settings
type PlaygroundConfig struct {
	Path               string            `yaml:"path" validate:"startswith=/"`
	QueryParam         string            `yaml:"query_param" validate:"required,alphanum"`
	Language           string            `yaml:"language" validate:"required"`
	Theme              string            `yaml:"theme"`
	DefaultText        string            `yaml:"default_text,omitempty"`
	DefaultFile        string            `yaml:"default_file,omitempty"` // Takes precedence over default_text
	NotifyDecodeErrors bool              `yaml:"notify_decode_errors"`
	Keybindings        KeybindingsConfig `yaml:"keybindings"`
}

// KeybindingsConfig maps playground actions to key chords
type KeybindingsConfig struct {
	FormatAndSave string `yaml:"format_and_save" validate:"required"`
	Format        string `yaml:"format" validate:"required,nefield=FormatAndSave"`
}

// FormatterConfig configures the external formatter
type FormatterConfig struct {
	Kind          string `yaml:"kind" validate:"oneof=none go exec wasm"`
	Cmd           string `yaml:"cmd,omitempty" validate:"required_if=Kind exec"`
	Wasm          string `yaml:"wasm,omitempty" validate:"required_if=Kind wasm"`
	Timeout       string `yaml:"timeout,omitempty"` // e.g. "5s". Default: 10s
	CacheTTL      string `yaml:"cache_ttl,omitempty"` // How long exec/wasm results are reused. Default: 10m, "0s" disables
	PrintWidth    int    `yaml:"print_width" validate:"min=0,max=400"`
	TabWidth      int    `yaml:"tab_width" validate:"min=0,max=16"`
	UseTabs       bool   `yaml:"use_tabs"`
	SingleQuote   bool   `yaml:"single_quote"`
	TrailingComma string `yaml:"trailing_comma" validate:"omitempty,oneof=none es5 all"`
	PassOptions   bool   `yaml:"pass_options"` // Append prettier-style flags to exec/wasm formatters
}

// GetTimeout returns the parsed formatter timeout (default: 10s)
func (c FormatterConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetCacheTTL returns how long formatted results are reused (default: 10m).
// Zero disables the cache.
func (c FormatterConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d < 0 {
		return 10 * time.Minute
	}
	return d
}

// APIConfig holds REST API configuration
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Rate limit in requests per second (default: 10)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 20)
	MaxIPs            int     `yaml:"max_ips,omitempty"`             // Tracked client IPs (default: 10000)
	IdleTimeout       string  `yaml:"idle_timeout,omitempty"`        // Forget clients quiet this long (default: 10m)
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetRateLimitMaxIPs returns the number of tracked IPs (default: 10000)
func (c *APIConfig) GetRateLimitMaxIPs() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxIPs
}

// GetRateLimitIdleTimeout returns how long a quiet client keeps its bucket
// (default: 10m)
func (c *APIConfig) GetRateLimitIdleTimeout() time.Duration {
	if c == nil || c.RateLimit == nil || c.RateLimit.IdleTimeout == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.RateLimit.IdleTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// DefaultText is the buffer shown when no share token is present.
const DefaultText = `import { ok, err, Result } from "result-lib";

function parsePort(raw: string): Result<number, string> {
  const port = Number(raw);
  return Number.isInteger(port) && port > 0 && port < 65536
    ? ok(port)
    : err("invalid port: " + raw);
}

parsePort("8080")
  .map((port) => port + 1)
  .match(
    (port) => console.log("listening on", port),
    (e) => console.error(e),
  );
`

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Result Playground",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Docs: DocsConfig{
			Dir:       "docs",
			HotReload: true,
		},
		Playground: PlaygroundConfig{
			Path:        "/playground",
			QueryParam:  "code",
			Language:    "typescript",
			Theme:       "vs-dark",
			DefaultText: DefaultText,
			Keybindings: KeybindingsConfig{
				FormatAndSave: "CtrlCmd+KeyS",
				Format:        "Shift+Alt+KeyF",
			},
		},
		Formatter: FormatterConfig{
			Kind:          "none",
			PrintWidth:    80,
			TabWidth:      2,
			SingleQuote:   false,
			TrailingComma: "all",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.PublicURL != "" {
		if err := security.ValidatePublicURL(c.PublicURL); err != nil {
			return fmt.Errorf("invalid config: public_url: %w", err)
		}
	}

	if c.Formatter.Timeout != "" {
		if _, err := time.ParseDuration(c.Formatter.Timeout); err != nil {
			return fmt.Errorf("invalid config: formatter.timeout: %w", err)
		}
	}
	if c.Formatter.CacheTTL != "" {
		if _, err := time.ParseDuration(c.Formatter.CacheTTL); err != nil {
			return fmt.Errorf("invalid config: formatter.cache_ttl: %w", err)
		}
	}
	if c.API != nil && c.API.RateLimit != nil && c.API.RateLimit.IdleTimeout != "" {
		if _, err := time.ParseDuration(c.API.RateLimit.IdleTimeout); err != nil {
			return fmt.Errorf("invalid config: api.rate_limit.idle_timeout: %w", err)
		}
	}

	return nil
}

// ResolveDefaultText returns the playground's fallback buffer. DefaultFile is
// resolved against baseDir and wins over DefaultText when set.
func (c *Config) ResolveDefaultText(baseDir string) (string, error) {
	if c.Playground.DefaultFile == "" {
		return c.Playground.DefaultText, nil
	}
	path := c.Playground.DefaultFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read default playground file: %w", err)
	}
	return string(data), nil
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	// If no config path provided, use default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromDir looks for resultplay.yaml in the given directory
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
