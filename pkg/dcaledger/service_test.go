package dcaledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/dcaledger/internal/adapters/clock"
	"github.com/bft-labs/dcaledger/internal/domain"
)

func units(s string) domain.Amount {
	return domain.MustParseUnits(s, 18)
}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *clock.ManualGate) {
	t.Helper()
	gate := clock.NewManualGate(100)
	opts = append([]Option{WithTimeGate(gate)}, opts...)
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, gate
}

func mustMint(t *testing.T, s *Service, symbol string, to Address, amount string) {
	t.Helper()
	if err := s.Mint(context.Background(), symbol, to, units(amount)); err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"sqlite without data dir", Config{Store: StoreSQLite}},
		{"unknown store", Config{Store: "redis"}},
		{"same symbols", Config{Store: StoreMemory, SellSymbol: "X", BuySymbol: "X"}},
		{"bad rate", Config{Store: StoreMemory, VenueRate: "abc"}},
		{"zero rate", Config{Store: StoreMemory, VenueRate: "0"}},
		{"http venue without url", Config{Store: StoreMemory, Venue: VenueHTTP}},
		{"unknown venue", Config{Store: StoreMemory, Venue: "dex"}},
		{"negative period", Config{Store: StoreMemory, Period: -time.Second}},
		{"bad reserve", Config{Store: StoreMemory, VenueReserve: "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestService_EnterExecuteExit(t *testing.T) {
	ctx := context.Background()
	s, gate := newTestService(t, Config{Store: StoreMemory})
	mustMint(t, s, "TKN-A", "alice", "1000")

	ev, err := s.Enter(ctx, "alice", units("10"), 3)
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if ev.ID != 0 || ev.StartSeq != 1 || ev.EndSeq != 3 {
		t.Errorf("Enter() = %+v, want id 0 seqs 1..3", ev)
	}

	if _, err := s.Execute(ctx); !errors.Is(err, domain.ErrAlreadyRanThisPeriod) {
		t.Fatalf("Execute() in same period error = %v, want ErrAlreadyRanThisPeriod", err)
	}

	gate.Advance(1)
	exec, err := s.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !exec.Sold.Eq(units("10")) || !exec.Bought.Eq(units("20")) {
		t.Errorf("Execute() sold %s bought %s, want 10 and 20 units", exec.Sold, exec.Bought)
	}

	bal, err := s.Balances(0)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	if !bal.Bought.Eq(units("20")) || !bal.Unsold.Eq(units("20")) {
		t.Errorf("Balances() = bought %s unsold %s, want 20 and 20 units", bal.Bought, bal.Unsold)
	}

	if _, err := s.Exit(ctx, "bob", 0); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("Exit() by non-owner error = %v, want ErrNotOwner", err)
	}
	out, err := s.Exit(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	if !out.Refunded.Eq(units("20")) || !out.Credited.Eq(units("20")) {
		t.Errorf("Exit() = %+v", out)
	}

	h, err := s.Holdings(ctx, "alice")
	if err != nil {
		t.Fatalf("Holdings() error = %v", err)
	}
	if !h.Sell.Eq(units("990")) || !h.Buy.Eq(units("20")) {
		t.Errorf("Holdings() = sell %s buy %s, want 990 and 20 units", h.Sell, h.Buy)
	}
	if _, ok := s.Allocation(0); ok {
		t.Error("Allocation(0) still present after exit")
	}
}

func TestService_EnterFailureClearsAllowance(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, Config{Store: StoreMemory})
	mustMint(t, s, "TKN-A", "alice", "5")

	_, err := s.Enter(ctx, "alice", units("10"), 1)
	if !errors.Is(err, domain.ErrInsufficientDeposit) {
		t.Fatalf("Enter() error = %v, want ErrInsufficientDeposit", err)
	}
	if got := s.sell.Allowance("alice", s.ledger.Account()); !got.IsZero() {
		t.Errorf("allowance after failed enter = %s, want 0", got)
	}
	if s.Snapshot().NextAllocationID != 0 {
		t.Error("failed enter changed ledger state")
	}
}

func TestService_RestoresFromStore(t *testing.T) {
	for _, store := range []string{StoreSQLite, StoreFile} {
		t.Run(store, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			gate := clock.NewManualGate(100)
			cfg := Config{Store: store, DataDir: dir}

			s, err := New(cfg, WithTimeGate(gate))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			mustMint(t, s, "TKN-A", "alice", "100")
			if _, err := s.Enter(ctx, "alice", units("10"), 2); err != nil {
				t.Fatalf("Enter() error = %v", err)
			}
			gate.Advance(1)
			if _, err := s.Execute(ctx); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			want := s.Snapshot()
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			s2, err := New(cfg, WithTimeGate(gate))
			if err != nil {
				t.Fatalf("New() after restart error = %v", err)
			}
			defer s2.Close()

			got := s2.Snapshot()
			if got.LastSeq != want.LastSeq || got.LastPeriod != want.LastPeriod ||
				!got.AggregateAmount.Eq(want.AggregateAmount) || len(got.Allocations) != 1 {
				t.Errorf("restored snapshot = %+v, want %+v", got.Meta, want.Meta)
			}

			h, err := s2.Holdings(ctx, "alice")
			if err != nil {
				t.Fatalf("Holdings() error = %v", err)
			}
			if !h.Sell.Eq(units("80")) {
				t.Errorf("restored alice balance = %s, want 80 units", h.Sell)
			}

			// The venue reserve is minted only once.
			reserve, err := s2.buy.BalanceOf(ctx, s2.venue.Address())
			if err != nil {
				t.Fatal(err)
			}
			if !reserve.Eq(units("999999980")) {
				t.Errorf("venue reserve = %s, want 999999980 units", reserve)
			}

			bal, err := s2.Balances(0)
			if err != nil {
				t.Fatalf("Balances() error = %v", err)
			}
			if !bal.Bought.Eq(units("20")) {
				t.Errorf("restored bought balance = %s, want 20 units", bal.Bought)
			}
		})
	}
}

func TestService_Events(t *testing.T) {
	ctx := context.Background()
	s, gate := newTestService(t, Config{Store: StoreSQLite, DataDir: t.TempDir()})
	mustMint(t, s, "TKN-A", "alice", "100")

	if _, err := s.Enter(ctx, "alice", units("1"), 1); err != nil {
		t.Fatal(err)
	}
	gate.Advance(1)
	if _, err := s.Execute(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Events(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Events() returned %d entries, want 2", len(entries))
	}
	if entries[0].Event.Kind != domain.EventEnter || entries[1].Event.Kind != domain.EventExecute {
		t.Errorf("Events() kinds = %s, %s", entries[0].Event.Kind, entries[1].Event.Kind)
	}
	if entries[0].Event.ID == "" || entries[0].Event.ID == entries[1].Event.ID {
		t.Errorf("Events() ids = %q, %q, want distinct", entries[0].Event.ID, entries[1].Event.ID)
	}

	mem, _ := newTestService(t, Config{Store: StoreMemory})
	if _, err := mem.Events(ctx, 0, 10); !errors.Is(err, ErrNoJournal) {
		t.Errorf("Events() on memory store error = %v, want ErrNoJournal", err)
	}
}

func TestService_MintUnknownAsset(t *testing.T) {
	s, _ := newTestService(t, Config{Store: StoreMemory})
	err := s.Mint(context.Background(), "DOGE", "alice", units("1"))
	if !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("Mint() error = %v, want ErrUnknownAsset", err)
	}
}

type recordingHandler struct {
	BaseEventHandler

	mu       sync.Mutex
	states   []State
	enters   []EnterEvent
	executes []ExecuteEvent
	exits    []ExitEvent
}

func (h *recordingHandler) OnStateChange(e StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e.Current)
}

func (h *recordingHandler) OnEnter(e EnterEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enters = append(h.enters, e)
}

func (h *recordingHandler) OnExecute(e ExecuteEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executes = append(h.executes, e)
}

func (h *recordingHandler) OnExit(e ExitEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exits = append(h.exits, e)
}

func (h *recordingHandler) executeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.executes)
}

func TestService_EventHandler(t *testing.T) {
	ctx := context.Background()
	h := &recordingHandler{}
	s, gate := newTestService(t, Config{Store: StoreMemory}, WithEventHandler(h))
	mustMint(t, s, "TKN-A", "alice", "100")

	if _, err := s.Enter(ctx, "alice", units("1"), 2); err != nil {
		t.Fatal(err)
	}
	gate.Advance(1)
	if _, err := s.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exit(ctx, "alice", 0); err != nil {
		t.Fatal(err)
	}
	// Rejected operations emit nothing.
	_, _ = s.Execute(ctx)

	if len(h.enters) != 1 || len(h.executes) != 1 || len(h.exits) != 1 {
		t.Errorf("events = %d enter, %d execute, %d exit, want 1 each",
			len(h.enters), len(h.executes), len(h.exits))
	}
	if h.exits[0].ExecutionsConsumed != 1 {
		t.Errorf("exit consumed = %d, want 1", h.exits[0].ExecutionsConsumed)
	}
}

func TestService_KeeperExecutesNewPeriod(t *testing.T) {
	ctx := context.Background()
	h := &recordingHandler{}
	s, gate := newTestService(t, Config{Store: StoreMemory, Keeper: true, PollInterval: 5 * time.Millisecond},
		WithEventHandler(h))
	mustMint(t, s, "TKN-A", "alice", "100")
	if _, err := s.Enter(ctx, "alice", units("1"), 3); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Status() != StateRunning {
		t.Errorf("Status() = %v, want Running", s.Status())
	}
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	gate.Advance(1)
	deadline := time.Now().Add(2 * time.Second)
	for h.executeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.executeCount() != 1 {
		t.Fatalf("keeper executed %d times, want 1", h.executeCount())
	}

	time.Sleep(20 * time.Millisecond)
	if h.executeCount() != 1 {
		t.Errorf("keeper executed twice in one period")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Status() != StateStopped {
		t.Errorf("Status() after stop = %v, want Stopped", s.Status())
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() error = %v, want ErrNotRunning", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	want := []State{StateStarting, StateRunning, StateStopping, StateStopped}
	if len(h.states) != len(want) {
		t.Fatalf("state changes = %v, want %v", h.states, want)
	}
	for i := range want {
		if h.states[i] != want[i] {
			t.Errorf("state[%d] = %v, want %v", i, h.states[i], want[i])
		}
	}
}

type trackingPlugin struct {
	name      string
	order     *[]string
	initErr   error
	gotConfig PluginConfig
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg PluginConfig) error {
	if p.initErr != nil {
		return p.initErr
	}
	p.gotConfig = cfg
	*p.order = append(*p.order, "init:"+p.name)
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}

func TestService_PluginOrder(t *testing.T) {
	var order []string
	a := &trackingPlugin{name: "a", order: &order}
	b := &trackingPlugin{name: "b", order: &order}
	s, _ := newTestService(t, Config{Store: StoreSQLite, DataDir: t.TempDir()}, WithPlugin(a), WithPlugin(b))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := []string{"init:a", "init:b", "shutdown:b", "shutdown:a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
	if a.gotConfig.Journal == nil {
		t.Error("sqlite store journal not passed to plugins")
	}
	if a.gotConfig.Controller == nil {
		t.Error("controller not passed to plugins")
	}
}

func TestService_PluginInitFailure(t *testing.T) {
	var order []string
	a := &trackingPlugin{name: "a", order: &order}
	b := &trackingPlugin{name: "b", order: &order, initErr: errors.New("boom")}
	s, _ := newTestService(t, Config{Store: StoreMemory}, WithPlugin(a), WithPlugin(b))

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded, want plugin error")
	}
	if s.Status() != StateCrashed {
		t.Errorf("Status() = %v, want Crashed", s.Status())
	}
	want := []string{"init:a", "shutdown:a"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestService_SetPollInterval(t *testing.T) {
	s, _ := newTestService(t, Config{Store: StoreMemory})
	s.SetPollInterval(3 * time.Second)
	if got := s.PollInterval(); got != 3*time.Second {
		t.Errorf("PollInterval() = %v, want 3s", got)
	}
}

// flakyRepo fails Apply while fail is set.
type flakyRepo struct {
	mu      sync.Mutex
	fail    bool
	applied []domain.Changeset
}

func (r *flakyRepo) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *flakyRepo) Load(context.Context) (domain.Snapshot, error) {
	return domain.Snapshot{}, nil
}

func (r *flakyRepo) Apply(_ context.Context, cs domain.Changeset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.applied = append(r.applied, cs)
	return nil
}

func (r *flakyRepo) Close() error { return nil }

func TestService_PersistFailureMovesNothing(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{}
	h := &recordingHandler{}
	s, gate := newTestService(t, Config{Store: StoreMemory}, WithRepository(repo), WithEventHandler(h))
	mustMint(t, s, "TKN-A", "alice", "100")

	holdings := func(owner Address) (sell, buy string) {
		t.Helper()
		got, err := s.Holdings(ctx, owner)
		if err != nil {
			t.Fatalf("Holdings() error = %v", err)
		}
		return got.Sell.FormatUnits(18), got.Buy.FormatUnits(18)
	}

	repo.setFail(true)
	for i := 0; i < 2; i++ {
		if _, err := s.Enter(ctx, "alice", units("10"), 3); err == nil {
			t.Fatalf("Enter() #%d succeeded with a failing store", i+1)
		}
	}
	if sell, _ := holdings("alice"); sell != "100" {
		t.Errorf("alice sell after failed enters = %s, want 100", sell)
	}
	if got := s.sell.Allowance("alice", s.ledger.Account()); !got.IsZero() {
		t.Errorf("allowance after failed enters = %s, want 0", got)
	}
	snap := s.Snapshot()
	if snap.NextAllocationID != 0 || !snap.AggregateAmount.IsZero() {
		t.Errorf("failed enters changed the ledger: next id %d aggregate %s", snap.NextAllocationID, snap.AggregateAmount)
	}

	repo.setFail(false)
	ev, err := s.Enter(ctx, "alice", units("10"), 3)
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if ev.ID != 0 {
		t.Errorf("Enter() id = %d, want 0", ev.ID)
	}

	gate.Advance(1)
	repo.setFail(true)
	if _, err := s.Execute(ctx); err == nil {
		t.Fatal("Execute() succeeded with a failing store")
	}
	if s.LastPeriod() != 100 || s.Snapshot().LastSeq != 0 {
		t.Error("failed execute changed the ledger")
	}
	if sell, buy := holdings(s.ledger.Account()); sell != "30" || buy != "0" {
		t.Errorf("account holdings after failed execute = %s/%s, want 30/0", sell, buy)
	}

	if _, err := s.Exit(ctx, "alice", 0); err == nil {
		t.Fatal("Exit() succeeded with a failing store")
	}
	if _, ok := s.Allocation(0); !ok {
		t.Error("failed exit removed the allocation")
	}
	if sell, _ := holdings("alice"); sell != "70" {
		t.Errorf("alice sell after failed exit = %s, want 70", sell)
	}

	repo.setFail(false)
	exec, err := s.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if exec.Seq != 1 {
		t.Errorf("Execute() seq = %d, want 1", exec.Seq)
	}

	if len(repo.applied) != 2 {
		t.Errorf("store applied %d changesets, want 2", len(repo.applied))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.enters) != 1 || len(h.executes) != 1 || len(h.exits) != 0 {
		t.Errorf("events = %d enter, %d execute, %d exit, want 1, 1, 0",
			len(h.enters), len(h.executes), len(h.exits))
	}
}
