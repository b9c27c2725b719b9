// Package config loads the storefront configuration: built-in defaults, then
// an optional YAML file, then a .env file outside production, then
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Remote   RemoteConfig   `yaml:"remote"`
	Store    StoreConfig    `yaml:"store"`
	Cart     CartConfig     `yaml:"cart"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// RemoteConfig points at the remote services. CartURL serves the cart, order
// and user APIs.
type RemoteConfig struct {
	CartURL    string `yaml:"cart_url"`
	CatalogURL string `yaml:"catalog_url"`
	Timeout    string `yaml:"timeout"`
}

// StoreConfig selects where per-session values persist. Driver is one of
// sqlite, postgres or pgx.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CartConfig struct {
	SyncTimeout string `yaml:"sync_timeout"`
}

type CheckoutConfig struct {
	PurchaserID int64 `yaml:"purchaser_id"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "15s",
		},
		Remote: RemoteConfig{
			CartURL:    "https://limitless-lake-55070.herokuapp.com",
			CatalogURL: "https://fakestoreapi.com",
			Timeout:    "30s",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "file:storefront.db",
		},
		Cart: CartConfig{
			SyncTimeout: "30s",
		},
		Checkout: CheckoutConfig{
			PurchaserID: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// outside production a local .env overrides the process environment
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Overload(".env")
	}
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("STOREFRONT_ADDR"); addr != "" {
		c.Server.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if url := os.Getenv("CART_API_URL"); url != "" {
		c.Remote.CartURL = url
	}
	if url := os.Getenv("CATALOG_API_URL"); url != "" {
		c.Remote.CatalogURL = url
	}
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Store.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if id := os.Getenv("PURCHASER_ID"); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			c.Checkout.PurchaserID = n
		}
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetShutdownTimeout returns how long the server waits for in-flight work on exit.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 15*time.Second)
}

// GetRemoteTimeout returns the per-request timeout for the remote services.
func (c *Config) GetRemoteTimeout() time.Duration {
	return parseDuration(c.Remote.Timeout, 30*time.Second)
}

// GetSyncTimeout returns the bound on one background cart write.
func (c *Config) GetSyncTimeout() time.Duration {
	return parseDuration(c.Cart.SyncTimeout, 30*time.Second)
}

var ValidDrivers = []string{"sqlite", "postgres", "pgx"}

func (c *Config) Validate() error {
	if c.Remote.CartURL == "" {
		return fmt.Errorf("remote cart url not configured (set CART_API_URL)")
	}
	if c.Remote.CatalogURL == "" {
		return fmt.Errorf("remote catalog url not configured (set CATALOG_API_URL)")
	}
	valid := false
	for _, d := range ValidDrivers {
		if c.Store.Driver == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
	}
	if c.Checkout.PurchaserID <= 0 {
		return fmt.Errorf("checkout purchaser_id must be > 0")
	}
	return nil
}
