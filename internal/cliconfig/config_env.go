package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (DCALEDGER_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", os.Getenv("DCALEDGER_DATA_DIR"), &cfg.DataDir)
	s.setString("store", os.Getenv("DCALEDGER_STORE"), &cfg.Store)
	s.setString("listen", os.Getenv("DCALEDGER_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("server", os.Getenv("DCALEDGER_SERVER_URL"), &cfg.ServerURL)
	s.setString("sell-symbol", os.Getenv("DCALEDGER_SELL_SYMBOL"), &cfg.SellSymbol)
	s.setString("buy-symbol", os.Getenv("DCALEDGER_BUY_SYMBOL"), &cfg.BuySymbol)
	s.setString("venue", os.Getenv("DCALEDGER_VENUE"), &cfg.Venue)
	s.setString("venue-url", os.Getenv("DCALEDGER_VENUE_URL"), &cfg.VenueURL)
	s.setString("venue-auth-key", os.Getenv("DCALEDGER_VENUE_AUTH_KEY"), &cfg.VenueAuthKey)
	s.setString("venue-rate", os.Getenv("DCALEDGER_VENUE_RATE"), &cfg.VenueRate)
	s.setString("venue-reserve", os.Getenv("DCALEDGER_VENUE_RESERVE"), &cfg.VenueReserve)
	s.setString("log-level", os.Getenv("DCALEDGER_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("period", os.Getenv("DCALEDGER_PERIOD"), &cfg.Period); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("DCALEDGER_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("DCALEDGER_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("decimals", os.Getenv("DCALEDGER_DECIMALS"), &cfg.Decimals); err != nil {
		return err
	}
	if err := s.setIntFromString("journal-retention", os.Getenv("DCALEDGER_JOURNAL_RETENTION"), &cfg.JournalRetention); err != nil {
		return err
	}
	if err := s.setFloatFromString("venue-rps", os.Getenv("DCALEDGER_VENUE_RPS"), &cfg.VenueRPS); err != nil {
		return err
	}

	s.setBoolFromString("keeper", os.Getenv("DCALEDGER_KEEPER"), &cfg.Keeper)

	return nil
}
