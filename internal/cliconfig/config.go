package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/dcaledger/pkg/dcaledger"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// Defaults for the CLI.
const (
	DefaultListenAddr       = "127.0.0.1:8645"
	DefaultServerURL        = "http://127.0.0.1:8645"
	DefaultJournalRetention = 10000
)

// Config holds CLI configuration for dcaledger.
type Config struct {
	DataDir string
	Store   string

	ListenAddr string
	ServerURL  string

	Period       time.Duration
	PollInterval time.Duration
	Keeper       bool

	Decimals   int
	SellSymbol string
	BuySymbol  string

	Venue        string
	VenueURL     string
	VenueAuthKey string
	VenueRate    string
	VenueReserve string
	VenueRPS     float64

	HTTPTimeout      time.Duration
	JournalRetention int
	LogLevel         string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Store:            dcaledger.DefaultStore,
		ListenAddr:       DefaultListenAddr,
		ServerURL:        DefaultServerURL,
		Period:           24 * time.Hour,
		PollInterval:     time.Minute,
		Keeper:           true,
		Decimals:         18,
		SellSymbol:       dcaledger.DefaultSellSymbol,
		BuySymbol:        dcaledger.DefaultBuySymbol,
		Venue:            dcaledger.VenueFixed,
		VenueRate:        dcaledger.DefaultVenueRate,
		VenueReserve:     dcaledger.DefaultVenueReserve,
		HTTPTimeout:      10 * time.Second,
		JournalRetention: DefaultJournalRetention,
		LogLevel:         "info",
		VenueAuthKey:     os.Getenv("DCALEDGER_VENUE_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		if c.Store != dcaledger.StoreMemory {
			h, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("data-dir is required: %w", err)
			}
			c.DataDir = filepath.Join(h, ".dcaledger", "data")
		}
	}

	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	c.VenueURL = strings.TrimRight(c.VenueURL, "/")
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}

	if c.Period <= 0 {
		return fmt.Errorf("period must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Decimals < 1 || c.Decimals > 36 {
		return fmt.Errorf("decimals must be between 1 and 36")
	}
	if c.JournalRetention < 0 {
		return fmt.Errorf("journal retention must not be negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Library converts the CLI configuration to a service configuration.
func (c Config) Library(configPath string) dcaledger.Config {
	return dcaledger.Config{
		DataDir:      c.DataDir,
		Store:        c.Store,
		ConfigPath:   configPath,
		Period:       c.Period,
		Keeper:       c.Keeper,
		PollInterval: c.PollInterval,
		Decimals:     uint8(c.Decimals),
		SellSymbol:   c.SellSymbol,
		BuySymbol:    c.BuySymbol,
		Venue:        c.Venue,
		VenueRate:    c.VenueRate,
		VenueReserve: c.VenueReserve,
		VenueURL:     c.VenueURL,
		VenueAuthKey: c.VenueAuthKey,
		VenueRPS:     c.VenueRPS,
		HTTPTimeout:  c.HTTPTimeout,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
