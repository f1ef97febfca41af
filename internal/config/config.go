// Package config handles loading and validating the application configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Roblox    RobloxConfig    `yaml:"roblox"`
	Valuation ValuationConfig `yaml:"valuation"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig defines the ops HTTP server settings (health + metrics).
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig defines PostgreSQL connection settings for the
// valuation cache.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
}

// DSN returns a PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// RobloxConfig defines the authenticated session and request engine settings.
type RobloxConfig struct {
	// Cookie is the session secret (.ROBLOSECURITY). Usually supplied via
	// environment substitution, e.g. "${DAWN_COOKIE}".
	Cookie string `yaml:"cookie"`

	// ProxyURL routes every outbound request through one proxy endpoint.
	// ProxyFile points at a proxies.txt-style list instead; one endpoint
	// is picked at startup. At most one of the two may be set.
	ProxyURL  string `yaml:"proxy_url"`
	ProxyFile string `yaml:"proxy_file"`

	IdentityURL  string `yaml:"identity_url"`
	LogoutURL    string `yaml:"logout_url"`
	InventoryURL string `yaml:"inventory_url"`

	RetryCeiling      int             `yaml:"retry_ceiling"`
	RequestTimeout    time.Duration   `yaml:"request_timeout"`
	InventoryCacheTTL time.Duration   `yaml:"inventory_cache_ttl"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines Roblox API rate limiting settings.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
	PerMinute int64   `yaml:"per_minute"`
}

// ValuationConfig defines the collectible valuation cache settings.
// The delay options replace the runtime attribute patching the feature
// grew up with; anything not listed here is rejected at load time.
type ValuationConfig struct {
	ItemDetailsURL   string        `yaml:"item_details_url"`
	DetailsTTL       time.Duration `yaml:"details_ttl"`
	NewItemScanDelay time.Duration `yaml:"new_item_scan_delay"`
	RefreshDelay     time.Duration `yaml:"refresh_delay"`
	CatalogUserID    int64         `yaml:"catalog_user_id"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyRobloxDefaults(&cfg.Roblox)
	applyValuationDefaults(&cfg.Valuation)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(d *DatabaseConfig) {
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.PoolSize == 0 {
		d.PoolSize = 10
	}
}

func applyRobloxDefaults(r *RobloxConfig) {
	if r.IdentityURL == "" {
		r.IdentityURL = "https://users.roblox.com/v1/users/authenticated"
	}
	if r.LogoutURL == "" {
		r.LogoutURL = "https://auth.roblox.com/v1/logout"
	}
	if r.InventoryURL == "" {
		r.InventoryURL = "https://inventory.roblox.com/v1/users/%d/assets/collectibles?sortOrder=Asc&limit=100"
	}
	if r.RetryCeiling == 0 {
		r.RetryCeiling = 8
	}
	if r.RequestTimeout == 0 {
		r.RequestTimeout = 30 * time.Second
	}
	if r.InventoryCacheTTL == 0 {
		r.InventoryCacheTTL = 30 * time.Second
	}
	applyRateLimitDefaults(&r.RateLimit)
}

func applyRateLimitDefaults(r *RateLimitConfig) {
	if r.PerSecond == 0 {
		r.PerSecond = 5.0
	}
	if r.Burst == 0 {
		r.Burst = 10
	}
	if r.PerMinute == 0 {
		r.PerMinute = 250
	}
}

func applyValuationDefaults(v *ValuationConfig) {
	if v.ItemDetailsURL == "" {
		v.ItemDetailsURL = "https://www.rolimons.com/itemapi/itemdetails"
	}
	if v.DetailsTTL == 0 {
		v.DetailsTTL = time.Minute
	}
	if v.NewItemScanDelay == 0 {
		v.NewItemScanDelay = time.Hour
	}
	if v.RefreshDelay == 0 {
		v.RefreshDelay = time.Minute
	}
	if v.CatalogUserID == 0 {
		// The ROBLOX account (user 1) owns one copy of every collectible;
		// its inventory doubles as the catalog.
		v.CatalogUserID = 1
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Roblox.Cookie == "" {
		errs = append(errs, fmt.Errorf("roblox.cookie is required"))
	}
	if cfg.Roblox.ProxyURL != "" && cfg.Roblox.ProxyFile != "" {
		errs = append(errs, fmt.Errorf("roblox.proxy_url and roblox.proxy_file are mutually exclusive"))
	}
	if cfg.Roblox.RetryCeiling < 1 {
		errs = append(errs, fmt.Errorf("roblox.retry_ceiling must be at least 1"))
	}
	if cfg.Roblox.InventoryCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("roblox.inventory_cache_ttl must not be negative"))
	}

	if cfg.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if cfg.Database.Name == "" {
		errs = append(errs, fmt.Errorf("database.name is required"))
	}
	if cfg.Database.User == "" {
		errs = append(errs, fmt.Errorf("database.user is required"))
	}

	if cfg.Valuation.NewItemScanDelay < time.Minute {
		errs = append(errs, fmt.Errorf("valuation.new_item_scan_delay must be at least 1m"))
	}
	if cfg.Valuation.RefreshDelay < time.Second {
		errs = append(errs, fmt.Errorf("valuation.refresh_delay must be at least 1s"))
	}

	return errors.Join(errs...)
}
