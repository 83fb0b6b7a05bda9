package dcaledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bft-labs/dcaledger/internal/adapters/clock"
	"github.com/bft-labs/dcaledger/internal/adapters/fs"
	"github.com/bft-labs/dcaledger/internal/adapters/sqlite"
	"github.com/bft-labs/dcaledger/internal/adapters/token"
	"github.com/bft-labs/dcaledger/internal/adapters/venue"
	"github.com/bft-labs/dcaledger/internal/app"
	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ledger"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/log"
)

const sqliteFileName = "ledger.db"

var (
	// ErrUnknownAsset is returned by Mint for a symbol the service doesn't trade.
	ErrUnknownAsset = errors.New("dcaledger: unknown asset")

	// ErrNoJournal is returned by Events when the store keeps no history.
	ErrNoJournal = errors.New("dcaledger: store has no event journal")
)

// Service runs a ledger over sandbox tokens, a venue and a store. Every
// ledger operation is serialized and persisted before it returns.
// Use New() to create an instance and Start() to run the keeper and plugins.
type Service struct {
	config    Config
	logger    Logger
	lifecycle *app.Lifecycle
	keeper    *app.Keeper
	plugins   []Plugin
	emitter   *eventEmitterWrapper

	gate    ports.TimeGate
	venue   ports.Venue
	sell    *token.Token
	buy     *token.Token
	repo    ports.Repository
	journal ports.Journal
	tokens  *fs.TokenFile

	// mu serializes ledger operations and their persistence
	mu     sync.Mutex
	ledger *ledger.Ledger

	// tokensDirty is set once an operation has written the token file
	tokensDirty bool

	runMu  sync.Mutex
	cancel context.CancelFunc
}

// New creates a Service, restoring the ledger from the configured store.
// The instance is created in StateStopped.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	s := &Service{
		config:    cfg,
		logger:    o.logger,
		lifecycle: app.NewLifecycle(o.logger, emitter),
		plugins:   o.plugins,
		emitter:   emitter,
	}

	if err := s.open(cfg, o); err != nil {
		if s.repo != nil {
			s.repo.Close()
		}
		return nil, err
	}
	return s, nil
}

func (s *Service) open(cfg Config, o options) error {
	ctx := context.Background()

	repo, err := openRepository(cfg, o.repo)
	if err != nil {
		return err
	}
	s.repo = repo
	if j, ok := repo.(ports.Journal); ok {
		s.journal = j
	}
	if cfg.Store != StoreMemory {
		s.tokens = fs.NewTokenFile(cfg.DataDir)
	}

	fresh, err := s.openTokens(cfg)
	if err != nil {
		return err
	}

	s.venue = o.venue
	if s.venue == nil {
		if s.venue, err = buildVenue(cfg, s.sell, s.buy, o); err != nil {
			return err
		}
	}
	if len(fresh) > 0 {
		reserve, err := domain.ParseUnits(cfg.VenueReserve, cfg.Decimals)
		if err != nil {
			return err
		}
		for _, t := range fresh {
			if err := t.Mint(ctx, s.venue.Address(), reserve); err != nil {
				return fmt.Errorf("mint %s venue reserve: %w", t.Symbol(), err)
			}
		}
		if err := s.saveTokens(); err != nil {
			return err
		}
	}

	s.gate = o.gate
	if s.gate == nil {
		s.gate = clock.NewPeriodGate(cfg.Period, time.Now)
	}

	var snap domain.Snapshot
	if repo != nil {
		if snap, err = repo.Load(ctx); err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
	}

	lcfg := ledger.Config{Account: cfg.Account, Decimals: cfg.Decimals}
	lopts := []ledger.Option{
		ledger.WithLogger(s.logger),
		ledger.WithPersister(s.persist),
		ledger.WithEventIDs(uuid.NewString),
	}
	if snap.IsEmpty() {
		s.ledger, err = ledger.New(lcfg, s.sell, s.buy, s.venue, s.gate, lopts...)
	} else {
		s.ledger, err = ledger.Restore(lcfg, snap, s.sell, s.buy, s.venue, s.gate, lopts...)
		s.logger.Info("ledger restored",
			log.Uint64("last_seq", snap.LastSeq),
			log.Int("allocations", len(snap.Allocations)),
		)
	}
	if err != nil {
		return err
	}

	s.keeper = app.NewKeeper(app.KeeperConfig{PollInterval: cfg.PollInterval}, s, s.gate, s.logger, s.emitter)
	return nil
}

func openRepository(cfg Config, override ports.Repository) (ports.Repository, error) {
	if override != nil {
		return override, nil
	}
	switch cfg.Store {
	case StoreSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, err
		}
		st, err := sqlite.Open(filepath.Join(cfg.DataDir, sqliteFileName))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case StoreFile:
		return fs.NewSnapshotFileRepository(cfg.DataDir), nil
	default:
		return nil, nil
	}
}

// openTokens loads the sandbox tokens and returns those created fresh.
func (s *Service) openTokens(cfg Config) ([]*token.Token, error) {
	books := map[string]token.Book{}
	if s.tokens != nil {
		var err error
		if books, err = s.tokens.Load(); err != nil {
			return nil, fmt.Errorf("load tokens: %w", err)
		}
	}

	var fresh []*token.Token
	get := func(symbol string) *token.Token {
		if b, ok := books[symbol]; ok {
			return token.FromBook(b)
		}
		t := token.New(symbol, symbol, cfg.Decimals)
		fresh = append(fresh, t)
		return t
	}
	s.sell = get(cfg.SellSymbol)
	s.buy = get(cfg.BuySymbol)
	return fresh, nil
}

func buildVenue(cfg Config, sell, buy *token.Token, o options) (ports.Venue, error) {
	switch cfg.Venue {
	case VenueHTTP:
		return venue.NewHTTP(venue.HTTPConfig{
			BaseURL:           cfg.VenueURL,
			AuthKey:           cfg.VenueAuthKey,
			RequestsPerSecond: cfg.VenueRPS,
		}, o.httpClient, o.logger)
	default:
		rate, err := decimal.NewFromString(cfg.VenueRate)
		if err != nil {
			return nil, fmt.Errorf("venue rate: %w", err)
		}
		return venue.NewFixedRate(venue.DefaultAddress, sell, buy, rate)
	}
}

// Start runs the plugins and, if enabled, the keeper in the background.
// The provided context bounds their lifetime.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		DataDir:    s.config.DataDir,
		ConfigPath: s.config.ConfigPath,
		Logger:     s.logger,
		Controller: s,
		Journal:    s.journal,
	}
	for i, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			s.shutdownPlugins(s.plugins[:i])
			cancel()
			_ = s.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	if err := s.lifecycle.TransitionTo(app.StateRunning, "service started"); err != nil {
		cancel()
		return err
	}

	if s.config.Keeper {
		s.lifecycle.Go(func() {
			err := s.keeper.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("keeper error", log.Err(err))
				_ = s.lifecycle.TransitionTo(app.StateCrashed, err.Error())
			}
		})
		s.logger.Info("keeper started", log.Duration("poll_interval", s.keeper.PollInterval()))
	}
	return nil
}

// Stop cancels the keeper, waits for it up to app.ShutdownTimeout and shuts
// the plugins down in reverse order.
func (s *Service) Stop() error {
	s.runMu.Lock()

	if !s.lifecycle.CanStop() {
		s.runMu.Unlock()
		return ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.runMu.Unlock()
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.runMu.Unlock()

	err := s.lifecycle.WaitWithTimeout(app.ShutdownTimeout)
	s.shutdownPlugins(s.plugins)

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

func (s *Service) shutdownPlugins(plugins []Plugin) {
	ctx := context.Background()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			s.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}
}

// Status returns the current lifecycle state.
func (s *Service) Status() State {
	return State(s.lifecycle.State())
}

// Close releases the store. Stop the service first.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return nil
	}
	return s.repo.Close()
}

// Enter creates an allocation for owner. The sandbox approves the deposit
// on the owner's behalf before the ledger pulls it.
func (s *Service) Enter(ctx context.Context, owner Address, amount Amount, numExecutions uint64) (EnterEvent, error) {
	var ev EnterEvent
	cs, err := s.atomic(func() (cs domain.Changeset, err error) {
		ev, cs, err = s.enter(ctx, owner, amount, numExecutions)
		return cs, err
	})
	s.emitter.dispatch(cs.Events)
	return ev, err
}

func (s *Service) enter(ctx context.Context, owner Address, amount Amount, n uint64) (EnterEvent, domain.Changeset, error) {
	deposit, err := amount.MulUint64(n)
	if err == nil && !deposit.IsZero() && !owner.IsZero() {
		if err := s.sell.Approve(ctx, owner, s.ledger.Account(), deposit); err != nil {
			return EnterEvent{}, domain.Changeset{}, err
		}
	}
	return s.ledger.Enter(ctx, owner, amount, n)
}

// Execute runs one execution now, subject to the period gate.
func (s *Service) Execute(ctx context.Context) (ExecuteEvent, error) {
	var ev ExecuteEvent
	cs, err := s.atomic(func() (cs domain.Changeset, err error) {
		ev, cs, err = s.ledger.Execute(ctx)
		return cs, err
	})
	s.emitter.dispatch(cs.Events)
	return ev, err
}

// Exit retires allocation id on behalf of caller and pays out its balances.
// An error wrapping ErrPayoutIncomplete comes with the event of the
// recorded refund.
func (s *Service) Exit(ctx context.Context, caller Address, id uint64) (ExitEvent, error) {
	var ev ExitEvent
	cs, err := s.atomic(func() (cs domain.Changeset, err error) {
		ev, cs, err = s.ledger.Exit(ctx, caller, id)
		return cs, err
	})
	s.emitter.dispatch(cs.Events)
	return ev, err
}

// atomic runs one ledger operation under the service lock. When the
// operation fails without committing, the token books are put back to
// their state before it, so no funds move.
func (s *Service) atomic(op func() (domain.Changeset, error)) (domain.Changeset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sell, buy := s.sell.Snapshot(), s.buy.Snapshot()
	s.tokensDirty = false

	cs, err := op()
	if err == nil || !cs.Empty() {
		return cs, err
	}

	s.sell.Restore(sell)
	s.buy.Restore(buy)
	if s.tokensDirty {
		if serr := s.saveTokens(); serr != nil {
			s.logger.Error("restore tokens failed", log.Err(serr))
		}
	}
	return domain.Changeset{}, err
}

// persist saves the token books and then the changeset. The ledger calls
// it before applying cs in memory and applies nothing if it fails.
func (s *Service) persist(ctx context.Context, cs domain.Changeset) error {
	s.tokensDirty = true
	if err := s.saveTokens(); err != nil {
		s.logger.Error("persist tokens failed", log.Err(err))
		return fmt.Errorf("persist tokens: %w", err)
	}
	if s.repo != nil {
		if err := s.repo.Apply(ctx, cs); err != nil {
			s.logger.Error("persist changeset failed", log.Err(err))
			return fmt.Errorf("persist changeset: %w", err)
		}
	}
	return nil
}

func (s *Service) saveTokens() error {
	if s.tokens == nil {
		return nil
	}
	return s.tokens.Save(s.sell, s.buy)
}

// Balances returns the bought and unsold amounts of allocation id.
func (s *Service) Balances(id uint64) (Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bought, err := s.ledger.BoughtBalance(id)
	if err != nil {
		return Balances{}, err
	}
	unsold, err := s.ledger.UnsoldBalance(id)
	if err != nil {
		return Balances{}, err
	}
	return Balances{ID: id, Bought: bought, Unsold: unsold}, nil
}

// Allocation returns allocation id and whether it exists.
func (s *Service) Allocation(id uint64) (Allocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ledger.Allocation(id)
	return a, !a.IsZero()
}

// Snapshot returns a copy of the full ledger state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot()
}

// LastPeriod returns the period of the most recent execution.
func (s *Service) LastPeriod() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.LastPeriod()
}

// CurrentPeriod returns the gate's current period.
func (s *Service) CurrentPeriod() uint64 {
	return s.gate.CurrentPeriod()
}

// Info summarizes the ledger and the account's token holdings.
func (s *Service) Info(ctx context.Context) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.ledger.Account()
	sellBal, err := s.sell.BalanceOf(ctx, account)
	if err != nil {
		return Info{}, err
	}
	buyBal, err := s.buy.BalanceOf(ctx, account)
	if err != nil {
		return Info{}, err
	}
	snap := s.ledger.Snapshot()
	return Info{
		State:            s.Status().String(),
		Account:          account,
		SellSymbol:       s.sell.Symbol(),
		BuySymbol:        s.buy.Symbol(),
		Decimals:         s.config.Decimals,
		AggregateAmount:  snap.AggregateAmount,
		LastSeq:          snap.LastSeq,
		LastPeriod:       snap.LastPeriod,
		CurrentPeriod:    s.gate.CurrentPeriod(),
		NextAllocationID: snap.NextAllocationID,
		Allocations:      len(snap.Allocations),
		AccountSell:      sellBal,
		AccountBuy:       buyBal,
	}, nil
}

// Holdings returns the sandbox token balances of owner.
func (s *Service) Holdings(ctx context.Context, owner Address) (Holdings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sellBal, err := s.sell.BalanceOf(ctx, owner)
	if err != nil {
		return Holdings{}, err
	}
	buyBal, err := s.buy.BalanceOf(ctx, owner)
	if err != nil {
		return Holdings{}, err
	}
	return Holdings{Owner: owner, Sell: sellBal, Buy: buyBal}, nil
}

// Mint credits amount of the sandbox token symbol to an address.
func (s *Service) Mint(ctx context.Context, symbol string, to Address, amount Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *token.Token
	switch symbol {
	case s.sell.Symbol():
		t = s.sell
	case s.buy.Symbol():
		t = s.buy
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	if err := t.Mint(ctx, to, amount); err != nil {
		return err
	}
	s.logger.Info("minted",
		log.String("symbol", symbol),
		log.Any("to", to),
		log.Stringer("amount", amount),
	)
	return s.saveTokens()
}

// Events pages the event journal.
func (s *Service) Events(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	return s.journal.Events(ctx, after, limit)
}

// Decimals returns the decimals of both traded assets.
func (s *Service) Decimals() uint8 {
	return s.config.Decimals
}

// SetPollInterval changes how often the keeper checks for a new period.
func (s *Service) SetPollInterval(d time.Duration) {
	s.keeper.SetPollInterval(d)
	s.logger.Info("poll interval updated", log.Duration("poll_interval", d))
}

// PollInterval returns the keeper's poll interval.
func (s *Service) PollInterval() time.Duration {
	return s.keeper.PollInterval()
}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: State(previous),
		Current:  State(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnExecuteError(err error, attempt int, retryable bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnExecuteError(ExecuteErrorEvent{Error: err, Attempt: attempt, Retryable: retryable})
}

func (e *eventEmitterWrapper) OnEnter(ev domain.EnterEvent) {
	if e.handler != nil {
		e.handler.OnEnter(ev)
	}
}

func (e *eventEmitterWrapper) OnExecute(ev domain.ExecuteEvent) {
	if e.handler != nil {
		e.handler.OnExecute(ev)
	}
}

func (e *eventEmitterWrapper) OnExit(ev domain.ExitEvent) {
	if e.handler != nil {
		e.handler.OnExit(ev)
	}
}

func (e *eventEmitterWrapper) dispatch(events []domain.Event) {
	var sink ports.EventSink = e
	for _, ev := range events {
		switch {
		case ev.Enter != nil:
			sink.OnEnter(*ev.Enter)
		case ev.Execute != nil:
			sink.OnExecute(*ev.Execute)
		case ev.Exit != nil:
			sink.OnExit(*ev.Exit)
		}
	}
}

var (
	_ app.Executor           = (*Service)(nil)
	_ app.KeeperEventEmitter = (*eventEmitterWrapper)(nil)
	_ app.EventEmitter       = (*eventEmitterWrapper)(nil)
	_ Controller             = (*Service)(nil)
)
