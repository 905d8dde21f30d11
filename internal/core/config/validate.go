package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hay-kot/criterio"

	"github.com/colonyops/filesession/internal/core/styles"
	"github.com/colonyops/filesession/internal/store/filestore"
)

// minSweepInterval keeps the sweeper from rescanning the directory in a
// tight loop.
const minSweepInterval = time.Second

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate checks that the configuration is structurally valid. It performs
// no I/O.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("cannot be empty"))
	}

	if !filestore.ValidPrefix(c.Store.Prefix) {
		errs = errs.Append("store.prefix", fmt.Errorf("%q may only contain letters, digits, '-' and '_'", c.Store.Prefix))
	}
	if c.Store.DefaultTTL < 0 {
		errs = errs.Append("store.default_ttl", fmt.Errorf("must not be negative, got %s", c.Store.DefaultTTL))
	}
	if !c.Store.IDPolicy.IsValid() {
		errs = errs.Append("store.id_policy", fmt.Errorf("invalid policy %q (want %s or %s)", c.Store.IDPolicy, IDPolicyUUID, IDPolicyHex))
	}
	if err := validFileMode(c.Store.FileMode); err != nil {
		errs = errs.Append("store.file_mode", err)
	}

	if c.Sweep.Interval < 0 {
		errs = errs.Append("sweep.interval", fmt.Errorf("must not be negative, got %s", c.Sweep.Interval))
	} else if c.Sweep.Interval > 0 && c.Sweep.Interval < minSweepInterval {
		errs = errs.Append("sweep.interval", fmt.Errorf("must be at least %s, got %s", minSweepInterval, c.Sweep.Interval))
	}

	if c.HTTP.Addr == "" {
		errs = errs.Append("http.addr", fmt.Errorf("cannot be empty"))
	}
	if err := validCookieName(c.HTTP.Cookie.Name); err != nil {
		errs = errs.Append("http.cookie.name", err)
	}
	switch strings.ToLower(c.HTTP.Cookie.SameSite) {
	case "", "lax", "strict":
	case "none":
		if !c.HTTP.Cookie.Secure {
			errs = errs.Append("http.cookie.same_site", fmt.Errorf("none requires secure: true"))
		}
	default:
		errs = errs.Append("http.cookie.same_site", fmt.Errorf("invalid value %q (want lax, strict, or none)", c.HTTP.Cookie.SameSite))
	}

	if _, ok := styles.GetPalette(c.Theme); !ok {
		errs = errs.Append("theme", fmt.Errorf("unknown theme %q (available: %s)", c.Theme, strings.Join(styles.ThemeNames(), ", ")))
	}

	return errs.ToError()
}

// ValidateDeep performs comprehensive validation of the configuration
// including file accessibility and address syntax. The configPath argument
// specifies the config file location to validate (empty string skips config
// file check). This calls Validate() first for basic structural validation,
// then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		criterio.Run("http.addr", c.HTTP.Addr, validListenAddr),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if !c.HTTP.Cookie.Secure {
		warnings = append(warnings, ValidationWarning{
			Category: "Cookie",
			Item:     "secure",
			Message:  "session cookie is sent over plain HTTP; set http.cookie.secure behind TLS",
		})
	}

	if !c.HTTP.Cookie.IsHTTPOnly() {
		warnings = append(warnings, ValidationWarning{
			Category: "Cookie",
			Item:     "http_only",
			Message:  "session cookie is readable from scripts",
		})
	}

	if c.Store.DefaultTTL > 0 && c.Sweep.Interval == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Sweep",
			Item:     "interval",
			Message:  "sweeper disabled; expired sessions stay on disk until their id is used again",
		})
	}

	return warnings
}

// validateFileAccess checks config file, data directory, and store directory.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		criterio.Run("store.dir", c.StoreDir(), isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

func validListenAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	return nil
}

// validFileMode requires owner read and write, and nothing outside the
// permission bits.
func validFileMode(m FileMode) error {
	if m&^0o777 != 0 {
		return fmt.Errorf("%#o has bits outside 0777", uint32(m))
	}
	if m&0o600 != 0o600 {
		return fmt.Errorf("%#o must grant the owner read and write", uint32(m))
	}
	return nil
}

// validCookieName accepts an RFC 6265 token.
func validCookieName(name string) error {
	if name == "" {
		return fmt.Errorf("cannot be empty")
	}
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune(`()<>@,;:\"/[]?={}`, r) {
			return fmt.Errorf("%q is not a valid cookie name", name)
		}
	}
	return nil
}
