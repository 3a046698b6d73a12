package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MikeYan01/List-memories/internal/lanip"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Sharing   SharingConfig     `yaml:"sharing"`
	Discovery DiscoveryConfig   `yaml:"discovery"`
	Sync      SyncConfig        `yaml:"sync"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Sharing.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	return c.Sync.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// StoreConfig holds the path to the SQLite record database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SharingConfig holds the pairing listener configuration.
//
// AdvertiseAddr pins the IPv4 address reported to verified peers. When
// empty the address is autodetected from the network interfaces, which is
// the right choice on single-homed devices.
type SharingConfig struct {
	Port          int    `yaml:"port"`
	AdvertiseAddr string `yaml:"advertise_addr"`
}

// Validate validates the sharing configuration.
func (c *SharingConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return err
	}
	if c.AdvertiseAddr != "" {
		if _, _, err := lanip.Split(c.AdvertiseAddr); err != nil {
			return fmt.Errorf("sharing: advertise_addr %q is not a valid IPv4 address", c.AdvertiseAddr)
		}
	}
	return nil
}

// DiscoveryConfig holds subnet scan tuning. Port is the port peers share
// on, which is normally the same value as sharing.port.
type DiscoveryConfig struct {
	Port           int `yaml:"port"`
	BatchSize      int `yaml:"batch_size"`
	ProbeTimeoutMS int `yaml:"probe_timeout_ms"`
}

// Validate validates the discovery configuration.
func (c *DiscoveryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.ProbeTimeoutMS, validation.Required, validation.Min(50), validation.Max(5000)),
	)
}

// ProbeTimeout returns the per-address probe timeout.
func (c *DiscoveryConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// SyncConfig holds sync transfer tuning.
type SyncConfig struct {
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FetchTimeoutSeconds, validation.Required, validation.Min(1), validation.Max(600)),
	)
}

// FetchTimeout returns the bundle download timeout.
func (c *SyncConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// DefaultStorePath returns the per-user database location.
func DefaultStorePath() string {
	return filepath.Join(xdg.DataHome, "list-memories", "memories.db")
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
		Sharing: SharingConfig{
			Port: 8080,
		},
		Discovery: DiscoveryConfig{
			Port:           8080,
			BatchSize:      20,
			ProbeTimeoutMS: 500,
		},
		Sync: SyncConfig{
			FetchTimeoutSeconds: 30,
		},
	}
}
