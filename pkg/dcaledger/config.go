package dcaledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bft-labs/dcaledger/internal/adapters/clock"
	"github.com/bft-labs/dcaledger/internal/app"
	"github.com/bft-labs/dcaledger/internal/domain"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// Venue kinds.
const (
	VenueFixed = "fixed"
	VenueHTTP  = "http"
)

// Default configuration values.
const (
	DefaultStore        = StoreSQLite
	DefaultSellSymbol   = "TKN-A"
	DefaultBuySymbol    = "TKN-B"
	DefaultVenueRate    = "2"
	DefaultVenueReserve = "1000000000"
	DefaultHTTPTimeout  = 10 * time.Second
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("dcaledger: invalid config")

// Config holds the settings of a Service.
type Config struct {
	// DataDir holds the store and the sandbox token balances.
	// Required unless Store is "memory".
	DataDir string

	// Store selects the ledger repository: "sqlite", "file" or "memory"
	Store string

	// ConfigPath is the file the service was configured from, if any.
	// Plugins such as the config watcher read it.
	ConfigPath string

	// Account holds pooled deposits and bought proceeds
	Account domain.Address

	// Period is the length of one execution period
	Period time.Duration

	// Keeper enables the background executor
	Keeper bool

	// PollInterval is how often the keeper checks for a new period
	PollInterval time.Duration

	// Decimals every asset must report
	Decimals uint8

	SellSymbol string
	BuySymbol  string

	// Venue selects the conversion venue: "fixed" or "http"
	Venue string

	// VenueRate is the fixed conversion rate, buy units per sell unit
	VenueRate string

	// VenueReserve is minted to the venue in both assets, in whole units,
	// when the sandbox tokens are first created
	VenueReserve string

	VenueURL     string
	VenueAuthKey string

	// VenueRPS limits quote requests to the HTTP venue; 0 disables limiting
	VenueRPS float64

	HTTPTimeout time.Duration
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.Store == "" {
		c.Store = DefaultStore
	}
	if c.Account.IsZero() {
		c.Account = "dcaledger"
	}
	if c.Period == 0 {
		c.Period = clock.DefaultPeriod
	}
	if c.PollInterval == 0 {
		c.PollInterval = app.DefaultPollInterval
	}
	if c.Decimals == 0 {
		c.Decimals = domain.PriceDecimals
	}
	if c.SellSymbol == "" {
		c.SellSymbol = DefaultSellSymbol
	}
	if c.BuySymbol == "" {
		c.BuySymbol = DefaultBuySymbol
	}
	if c.Venue == "" {
		c.Venue = VenueFixed
	}
	if c.VenueRate == "" {
		c.VenueRate = DefaultVenueRate
	}
	if c.VenueReserve == "" {
		c.VenueReserve = DefaultVenueReserve
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
}

// Validate checks the configuration. Call SetDefaults first.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreFile:
		if c.DataDir == "" {
			return fmt.Errorf("%w: data_dir is required for the %s store", ErrInvalidConfig, c.Store)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	if c.SellSymbol == c.BuySymbol {
		return fmt.Errorf("%w: sell and buy symbols must differ", ErrInvalidConfig)
	}
	if _, err := domain.ParseUnits(c.VenueReserve, c.Decimals); err != nil {
		return fmt.Errorf("%w: venue_reserve: %v", ErrInvalidConfig, err)
	}
	switch c.Venue {
	case VenueFixed:
		rate, err := decimal.NewFromString(c.VenueRate)
		if err != nil {
			return fmt.Errorf("%w: venue_rate: %v", ErrInvalidConfig, err)
		}
		if !rate.IsPositive() {
			return fmt.Errorf("%w: venue_rate must be positive", ErrInvalidConfig)
		}
	case VenueHTTP:
		if c.VenueURL == "" {
			return fmt.Errorf("%w: venue_url is required for the http venue", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown venue %q", ErrInvalidConfig, c.Venue)
	}
	if c.VenueRPS < 0 {
		return fmt.Errorf("%w: venue_rps must not be negative", ErrInvalidConfig)
	}
	return nil
}
