package dcaledger

import (
	"context"
	"time"

	"github.com/bft-labs/dcaledger/internal/app"
	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// Re-exported ledger types.
type (
	Amount       = domain.Amount
	Address      = domain.Address
	Allocation   = domain.Allocation
	Snapshot     = domain.Snapshot
	Event        = domain.Event
	EnterEvent   = domain.EnterEvent
	ExecuteEvent = domain.ExecuteEvent
	ExitEvent    = domain.ExitEvent
	JournalEntry = ports.JournalEntry
	Journal      = ports.Journal
	Repository   = ports.Repository
	Venue        = ports.Venue
	TimeGate     = ports.TimeGate
	HTTPClient   = ports.HTTPClient
	Logger       = log.Logger
	LogField     = log.Field
)

// Lifecycle errors.
var (
	ErrAlreadyRunning  = app.ErrAlreadyRunning
	ErrNotRunning      = app.ErrNotRunning
	ErrShutdownTimeout = app.ErrShutdownTimeout
)

// State is the lifecycle state of a Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	return app.State(s).String()
}

// Balances is the accrued position of one allocation.
type Balances struct {
	ID     uint64 `json:"id"`
	Bought Amount `json:"bought"`
	Unsold Amount `json:"unsold"`
}

// Holdings are the sandbox token balances of one address.
type Holdings struct {
	Owner Address `json:"owner"`
	Sell  Amount  `json:"sell"`
	Buy   Amount  `json:"buy"`
}

// Info summarizes the ledger.
type Info struct {
	State            string  `json:"state"`
	Account          Address `json:"account"`
	SellSymbol       string  `json:"sell_symbol"`
	BuySymbol        string  `json:"buy_symbol"`
	Decimals         uint8   `json:"decimals"`
	AggregateAmount  Amount  `json:"aggregate_amount"`
	LastSeq          uint64  `json:"last_seq"`
	LastPeriod       uint64  `json:"last_period"`
	CurrentPeriod    uint64  `json:"current_period"`
	NextAllocationID uint64  `json:"next_allocation_id"`
	Allocations      int     `json:"allocations"`
	AccountSell      Amount  `json:"account_sell"`
	AccountBuy       Amount  `json:"account_buy"`
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// ExecuteErrorEvent is emitted when a keeper-triggered execution fails.
type ExecuteErrorEvent struct {
	Error     error
	Attempt   int
	Retryable bool
}

// EventHandler receives service events. Ledger events are delivered after
// the operation is persisted and outside the service lock.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnEnter(EnterEvent)
	OnExecute(ExecuteEvent)
	OnExit(ExitEvent)
	OnExecuteError(ExecuteErrorEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the callbacks you need.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)   {}
func (BaseEventHandler) OnEnter(EnterEvent)               {}
func (BaseEventHandler) OnExecute(ExecuteEvent)           {}
func (BaseEventHandler) OnExit(ExitEvent)                 {}
func (BaseEventHandler) OnExecuteError(ExecuteErrorEvent) {}

// Controller lets plugins adjust a running service.
type Controller interface {
	SetPollInterval(d time.Duration)
	PollInterval() time.Duration
}

// PluginConfig is passed to plugins on Initialize.
type PluginConfig struct {
	DataDir    string
	ConfigPath string
	Logger     Logger
	Controller Controller

	// Journal is nil when the store keeps no event history
	Journal Journal
}

// Plugin is an optional component started and stopped with the service.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}
