// Package config handles configuration loading and validation for filesession.
package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/colonyops/filesession/internal/core/styles"
	"github.com/colonyops/filesession/internal/store/filestore"
	"github.com/colonyops/filesession/pkg/randid"
)

// IDPolicy selects the identifier generator for new sessions.
type IDPolicy string

const (
	// IDPolicyUUID renders a random UUID as 32 hex characters.
	IDPolicyUUID IDPolicy = "uuid"
	// IDPolicyHex renders 32 random bytes as 64 hex characters.
	IDPolicyHex IDPolicy = "hex"
)

// IsValid reports whether p names a known policy.
func (p IDPolicy) IsValid() bool {
	switch p {
	case IDPolicyUUID, IDPolicyHex:
		return true
	default:
		return false
	}
}

// Generator returns the identifier generator for p. Unknown policies fall
// back to IDPolicyUUID; Validate rejects them before this is reached.
func (p IDPolicy) Generator() randid.Generator {
	if p == IDPolicyHex {
		return randid.Hex(32)
	}
	return randid.UUIDHex
}

// FileMode is a permission mode written in YAML as an octal string
// ("0600", "0o640", or "640").
type FileMode os.FileMode

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *FileMode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: file_mode must be an octal string", node.Line)
	}

	raw := strings.TrimPrefix(strings.TrimPrefix(node.Value, "0o"), "0O")
	v, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return fmt.Errorf("line %d: invalid file_mode %q: %w", node.Line, node.Value, err)
	}

	*m = FileMode(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m FileMode) MarshalYAML() (any, error) {
	return fmt.Sprintf("%#o", uint32(m)), nil
}

// Config holds the application configuration.
type Config struct {
	Store   StoreConfig `yaml:"store"`
	Sweep   SweepConfig `yaml:"sweep"`
	HTTP    HTTPConfig  `yaml:"http"`
	Theme   string      `yaml:"theme"` // CLI output colors
	DataDir string      `yaml:"-"`     // set by caller, not from config file
}

// StoreConfig configures the session file store.
type StoreConfig struct {
	Dir        string        `yaml:"dir"`         // defaults to <data-dir>/sessions
	Prefix     string        `yaml:"prefix"`      // record file name prefix
	DefaultTTL time.Duration `yaml:"default_ttl"` // 0 = sessions never expire
	IDPolicy   IDPolicy      `yaml:"id_policy"`
	FileMode   FileMode      `yaml:"file_mode"`
}

// SweepConfig configures the background sweeper.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables the sweeper
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr   string       `yaml:"addr"`
	Cookie CookieConfig `yaml:"cookie"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Domain   string `yaml:"domain"`
	Secure   bool   `yaml:"secure"`
	HTTPOnly *bool  `yaml:"http_only"` // nil = true
	SameSite string `yaml:"same_site"` // lax, strict, none, or empty
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	httpOnly := true
	return Config{
		Store: StoreConfig{
			Prefix:     filestore.DefaultPrefix,
			DefaultTTL: 14 * 24 * time.Hour,
			IDPolicy:   IDPolicyUUID,
			FileMode:   0o600,
		},
		Sweep: SweepConfig{
			Interval: 10 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8080",
			Cookie: CookieConfig{
				Name:     "sessionid",
				Path:     "/",
				HTTPOnly: &httpOnly,
				SameSite: "lax",
			},
		},
		Theme: styles.DefaultTheme,
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
// Zero durations are meaningful (no expiry, no sweeping) and are kept.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Store.Prefix == "" {
		c.Store.Prefix = defaults.Store.Prefix
	}
	if c.Store.IDPolicy == "" {
		c.Store.IDPolicy = defaults.Store.IDPolicy
	}
	if c.Store.FileMode == 0 {
		c.Store.FileMode = defaults.Store.FileMode
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaults.HTTP.Addr
	}
	if c.HTTP.Cookie.Name == "" {
		c.HTTP.Cookie.Name = defaults.HTTP.Cookie.Name
	}
	if c.HTTP.Cookie.Path == "" {
		c.HTTP.Cookie.Path = defaults.HTTP.Cookie.Path
	}
	if c.HTTP.Cookie.HTTPOnly == nil {
		c.HTTP.Cookie.HTTPOnly = defaults.HTTP.Cookie.HTTPOnly
	}
	if c.Theme == "" {
		c.Theme = defaults.Theme
	}
}

// StoreDir returns the directory holding session files.
func (c *Config) StoreDir() string {
	if c.Store.Dir != "" {
		return c.Store.Dir
	}
	return filepath.Join(c.DataDir, "sessions")
}

// StoreOptions translates the store section into filestore options. Clock
// and Logger are left for the caller.
func (c *Config) StoreOptions() filestore.Options {
	return filestore.Options{
		Dir:        c.StoreDir(),
		Prefix:     c.Store.Prefix,
		DefaultTTL: c.Store.DefaultTTL,
		NewID:      c.Store.IDPolicy.Generator(),
		FileMode:   os.FileMode(c.Store.FileMode),
	}
}

// IsHTTPOnly reports whether the session cookie carries the HttpOnly flag.
func (cc CookieConfig) IsHTTPOnly() bool {
	return cc.HTTPOnly == nil || *cc.HTTPOnly
}

// SameSiteMode maps SameSite to its net/http value.
func (cc CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(cc.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
