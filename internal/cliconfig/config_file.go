package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir          string  `toml:"data_dir"`
	Store            string  `toml:"store"`
	ListenAddr       string  `toml:"listen_addr"`
	ServerURL        string  `toml:"server_url"`
	Period           string  `toml:"period"`
	PollInterval     string  `toml:"poll_interval"`
	Keeper           *bool   `toml:"keeper"`
	Decimals         int     `toml:"decimals"`
	SellSymbol       string  `toml:"sell_symbol"`
	BuySymbol        string  `toml:"buy_symbol"`
	Venue            string  `toml:"venue"`
	VenueURL         string  `toml:"venue_url"`
	VenueAuthKey     string  `toml:"venue_auth_key"`
	VenueRate        string  `toml:"venue_rate"`
	VenueReserve     string  `toml:"venue_reserve"`
	VenueRPS         float64 `toml:"venue_rps"`
	HTTPTimeout      string  `toml:"http_timeout"`
	JournalRetention int     `toml:"journal_retention"`
	LogLevel         string  `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.dcaledger/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dcaledger", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("store", fc.Store, &cfg.Store)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("server", fc.ServerURL, &cfg.ServerURL)
	s.setString("sell-symbol", fc.SellSymbol, &cfg.SellSymbol)
	s.setString("buy-symbol", fc.BuySymbol, &cfg.BuySymbol)
	s.setString("venue", fc.Venue, &cfg.Venue)
	s.setString("venue-url", fc.VenueURL, &cfg.VenueURL)
	s.setString("venue-auth-key", fc.VenueAuthKey, &cfg.VenueAuthKey)
	s.setString("venue-rate", fc.VenueRate, &cfg.VenueRate)
	s.setString("venue-reserve", fc.VenueReserve, &cfg.VenueReserve)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("period", fc.Period, &cfg.Period); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("decimals", fc.Decimals, &cfg.Decimals)
	s.setInt("journal-retention", fc.JournalRetention, &cfg.JournalRetention)
	s.setFloat("venue-rps", fc.VenueRPS, &cfg.VenueRPS)
	s.setBool("keeper", fc.Keeper, &cfg.Keeper)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
