package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// DefaultAccount is the address the ledger holds deposits and proceeds under.
const DefaultAccount domain.Address = "dcaledger"

// Config holds ledger construction parameters.
type Config struct {
	// Account is the holder of pooled deposits and bought proceeds
	Account domain.Address

	// Decimals both assets must report
	Decimals uint8
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	return Config{
		Account:  DefaultAccount,
		Decimals: domain.PriceDecimals,
	}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger ports.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the function used to timestamp events.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Persister stores a staged changeset.
type Persister func(ctx context.Context, cs domain.Changeset) error

// WithPersister sets the function each changeset is stored through before
// the ledger applies it in memory. A failing persister leaves the ledger
// unchanged.
func WithPersister(p Persister) Option {
	return func(l *Ledger) {
		l.persist = p
	}
}

// WithEventIDs sets the generator used to assign event ids.
func WithEventIDs(next func() string) Option {
	return func(l *Ledger) {
		l.nextID = next
	}
}

// Ledger is the accrual ledger state machine.
type Ledger struct {
	cfg    Config
	sell   ports.Asset
	buy    ports.Asset
	venue  ports.Venue
	gate   ports.TimeGate
	logger ports.Logger
	now    func() time.Time

	persist Persister
	nextID  func() string

	state domain.Snapshot
	busy  bool
}

// New creates an empty ledger. Both assets must report cfg.Decimals.
// LastPeriod starts at the gate's current period, so the first execution
// is possible once the next period begins.
func New(cfg Config, sell, buy ports.Asset, venue ports.Venue, gate ports.TimeGate, opts ...Option) (*Ledger, error) {
	l, err := build(cfg, sell, buy, venue, gate, opts)
	if err != nil {
		return nil, err
	}
	l.state = domain.NewSnapshot()
	l.state.LastPeriod = gate.CurrentPeriod()
	return l, nil
}

// Restore rebuilds a ledger from persisted state.
func Restore(cfg Config, snap domain.Snapshot, sell, buy ports.Asset, venue ports.Venue, gate ports.TimeGate, opts ...Option) (*Ledger, error) {
	l, err := build(cfg, sell, buy, venue, gate, opts)
	if err != nil {
		return nil, err
	}
	l.state = snap.Clone()
	if _, ok := l.state.CumulativePrice[0]; !ok {
		l.state.CumulativePrice[0] = domain.Amount{}
	}
	return l, nil
}

func build(cfg Config, sell, buy ports.Asset, venue ports.Venue, gate ports.TimeGate, opts []Option) (*Ledger, error) {
	if cfg.Account.IsZero() {
		cfg.Account = DefaultAccount
	}
	if sell == nil || buy == nil {
		return nil, fmt.Errorf("ledger: sell and buy assets are required")
	}
	if venue == nil {
		return nil, fmt.Errorf("ledger: venue is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("ledger: time gate is required")
	}
	if sell.Decimals() != cfg.Decimals {
		return nil, fmt.Errorf("sell asset %s has %d decimals, want %d: %w",
			sell.Symbol(), sell.Decimals(), cfg.Decimals, domain.ErrDecimalsMismatch)
	}
	if buy.Decimals() != cfg.Decimals {
		return nil, fmt.Errorf("buy asset %s has %d decimals, want %d: %w",
			buy.Symbol(), buy.Decimals(), cfg.Decimals, domain.ErrDecimalsMismatch)
	}

	l := &Ledger{
		cfg:    cfg,
		sell:   sell,
		buy:    buy,
		venue:  venue,
		gate:   gate,
		logger: log.NewNoopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// lock marks an operation as in flight.
func (l *Ledger) lock() error {
	if l.busy {
		return domain.ErrReentrantCall
	}
	l.busy = true
	return nil
}

func (l *Ledger) unlock() {
	l.busy = false
}

// commit stores cs through the persister and then folds it into the
// in-memory state. Nothing is applied when storing fails.
func (l *Ledger) commit(ctx context.Context, cs domain.Changeset) error {
	if l.persist != nil {
		if err := l.persist(ctx, cs); err != nil {
			return err
		}
	}
	l.state.Apply(cs)
	return nil
}

func (l *Ledger) event(kind domain.EventKind, seq uint64) domain.Event {
	ev := domain.Event{Kind: kind, Seq: seq, At: l.now().UTC()}
	if l.nextID != nil {
		ev.ID = l.nextID()
	}
	return ev
}

// Config returns the ledger configuration.
func (l *Ledger) Config() Config { return l.cfg }

// Account returns the address holding pooled deposits and proceeds.
func (l *Ledger) Account() domain.Address { return l.cfg.Account }

// SellAsset returns the asset sold at each execution.
func (l *Ledger) SellAsset() ports.Asset { return l.sell }

// BuyAsset returns the asset bought at each execution.
func (l *Ledger) BuyAsset() ports.Asset { return l.buy }

// AggregateAmount returns the amount sold by the next execution.
func (l *Ledger) AggregateAmount() domain.Amount { return l.state.AggregateAmount }

// ScheduledRemoval returns the amount retired once execution seq completes.
func (l *Ledger) ScheduledRemoval(seq uint64) domain.Amount {
	return l.state.ScheduledRemoval[seq]
}

// CumulativePrice returns the running price sum up to execution seq.
// Sequence numbers beyond LastSeq read as zero.
func (l *Ledger) CumulativePrice(seq uint64) domain.Amount {
	return l.state.CumulativePrice[seq]
}

// LastSeq returns the sequence number of the most recent execution.
func (l *Ledger) LastSeq() uint64 { return l.state.LastSeq }

// LastPeriod returns the gate period of the most recent execution.
func (l *Ledger) LastPeriod() uint64 { return l.state.LastPeriod }

// NextAllocationID returns the id the next allocation will receive.
func (l *Ledger) NextAllocationID() uint64 { return l.state.NextAllocationID }

// Allocation returns the allocation with the given id or the zero value.
func (l *Ledger) Allocation(id uint64) domain.Allocation {
	return l.state.Allocations[id]
}

// Snapshot returns a deep copy of the ledger state.
func (l *Ledger) Snapshot() domain.Snapshot {
	return l.state.Clone()
}
