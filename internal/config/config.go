package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all lnchat configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	API        APIConfig        `toml:"api"`
	Invoice    InvoiceConfig    `toml:"invoice"`
	Pricing    PricingOverrides `toml:"pricing"`
	Appearance AppearanceConfig `toml:"appearance"`
	Log        LogConfig        `toml:"log"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DefaultModel string `toml:"default_model"`
	DefaultPlan  string `toml:"default_plan,omitempty"`
	StateDB      string `toml:"state_db,omitempty"`
	RequestLimit int64  `toml:"request_limit"`
	TokenLimit   int64  `toml:"token_limit"`
}

// APIConfig points at the metered chat service.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Invoice provider modes.
const (
	InvoiceModeDev         = "dev"
	InvoiceModeLND         = "lnd"
	InvoiceModeLNDFallback = "lnd-fallback"
)

// Poll error policies.
const (
	PollErrorStop       = "stop"
	PollErrorRetry      = "retry"
	PollErrorAssumePaid = "assume-paid"
)

// InvoiceConfig selects and configures the Lightning invoice provider.
type InvoiceConfig struct {
	Mode            string `toml:"mode"`
	RESTHost        string `toml:"rest_host,omitempty"`
	Macaroon        string `toml:"macaroon,omitempty"`
	ExpirySeconds   int    `toml:"expiry_seconds"`
	MinAmountSats   int64  `toml:"min_amount_sats"`
	PollIntervalSec int    `toml:"poll_interval_sec"`
	PollTimeoutMin  int    `toml:"poll_timeout_min"`
	PollErrorPolicy string `toml:"poll_error_policy"`
}

// PollInterval returns the invoice status poll cadence.
func (c InvoiceConfig) PollInterval() time.Duration {
	if c.PollIntervalSec <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.PollIntervalSec) * time.Second
}

// PollTimeout returns the ceiling after which an unpaid invoice counts as expired.
func (c InvoiceConfig) PollTimeout() time.Duration {
	if c.PollTimeoutMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.PollTimeoutMin) * time.Minute
}

// PricingOverrides allows user-defined per-unit rates, in BTC.
type PricingOverrides struct {
	TokenRateBTC   *float64 `toml:"token_rate_btc,omitempty"`
	RequestRateBTC *float64 `toml:"request_rate_btc,omitempty"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DefaultModel: DefaultModel,
			RequestLimit: DefaultRequestLimit,
			TokenLimit:   DefaultTokenLimit,
		},
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api/v1",
			TimeoutSeconds: 60,
		},
		Invoice: InvoiceConfig{
			Mode:            InvoiceModeDev,
			ExpirySeconds:   900,
			MinAmountSats:   10,
			PollIntervalSec: 3,
			PollTimeoutMin:  15,
			PollErrorPolicy: PollErrorStop,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lnchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lnchat")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// CacheDir returns the XDG-compliant cache directory used for state and logs.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "lnchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "lnchat")
}

// StatePath returns where the persisted session token lives.
func StatePath(cfg Config) string {
	if cfg.General.StateDB != "" {
		return cfg.General.StateDB
	}
	return filepath.Join(CacheDir(), "state.db")
}

// Load reads the config file, returning defaults if it doesn't exist.
// Environment overrides (optionally from a .env file) are applied last.
func Load() (Config, error) {
	return LoadFrom(Path())
}

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's config location
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LNCHAT_API_URL"); v != "" {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("LNCHAT_LND_HOST"); v != "" {
		cfg.Invoice.RESTHost = v
	}
	if v := os.Getenv("LNCHAT_LND_MACAROON"); v != "" {
		cfg.Invoice.Macaroon = v
	}
	if v := os.Getenv("LNCHAT_INVOICE_MODE"); v != "" {
		cfg.Invoice.Mode = v
	}
	if v := os.Getenv("LNCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveTo(Path(), cfg)
}

// SaveTo is Save with an explicit file path.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // user config path
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}

// Validate checks the values a malformed file or env could break.
func (c Config) Validate() error {
	switch c.Invoice.Mode {
	case InvoiceModeDev, InvoiceModeLND, InvoiceModeLNDFallback:
	default:
		return fmt.Errorf("invoice.mode %q: want one of %s, %s, %s",
			c.Invoice.Mode, InvoiceModeDev, InvoiceModeLND, InvoiceModeLNDFallback)
	}
	switch c.Invoice.PollErrorPolicy {
	case "", PollErrorStop, PollErrorRetry, PollErrorAssumePaid:
	default:
		return fmt.Errorf("invoice.poll_error_policy %q: want %s, %s or %s",
			c.Invoice.PollErrorPolicy, PollErrorStop, PollErrorRetry, PollErrorAssumePaid)
	}
	if c.Invoice.Mode != InvoiceModeDev && c.Invoice.RESTHost == "" {
		return fmt.Errorf("invoice.rest_host is required in %s mode", c.Invoice.Mode)
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is empty")
	}
	return nil
}
