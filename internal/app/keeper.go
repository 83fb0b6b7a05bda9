package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// DefaultPollInterval is how often the keeper checks for a new period.
const DefaultPollInterval = time.Minute

// DefaultMaxAttempts bounds the retries of a failing execution per poll.
const DefaultMaxAttempts = 5

// Executor runs the ledger's execution step. Implementations serialize it
// with the other ledger operations and persist the result.
type Executor interface {
	Execute(ctx context.Context) (domain.ExecuteEvent, error)
	LastPeriod() uint64
}

// KeeperEventEmitter is notified about keeper outcomes.
type KeeperEventEmitter interface {
	OnExecuteError(err error, attempt int, retryable bool)
}

// KeeperConfig configures the keeper loop.
type KeeperConfig struct {
	PollInterval   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Once runs a single poll and returns
	Once bool
}

// Keeper triggers Execute once per period.
type Keeper struct {
	config   KeeperConfig
	exec     Executor
	gate     ports.TimeGate
	logger   ports.Logger
	emitter  KeeperEventEmitter
	backoff  *backoff
	interval atomic.Int64
}

// NewKeeper creates a keeper. emitter may be nil.
func NewKeeper(config KeeperConfig, exec Executor, gate ports.TimeGate, logger ports.Logger, emitter KeeperEventEmitter) *Keeper {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	k := &Keeper{
		config:  config,
		exec:    exec,
		gate:    gate,
		logger:  logger,
		emitter: emitter,
		backoff: newBackoff(config.BackoffInitial, config.BackoffMax),
	}
	k.interval.Store(int64(config.PollInterval))
	return k
}

// SetPollInterval changes the poll interval from the next wait on.
func (k *Keeper) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	k.interval.Store(int64(d))
}

// PollInterval returns the current poll interval.
func (k *Keeper) PollInterval() time.Duration {
	return time.Duration(k.interval.Load())
}

// Run polls until ctx is canceled.
func (k *Keeper) Run(ctx context.Context) error {
	for {
		k.Poll(ctx)
		if k.config.Once {
			return nil
		}

		t := time.NewTimer(k.PollInterval())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll executes once if a new period has started. Conversion failures are
// retried with backoff up to MaxAttempts; guard rejections are not.
// It reports whether an execution happened. Poll is not safe for
// concurrent use.
func (k *Keeper) Poll(ctx context.Context) bool {
	b := k.backoff
	period := k.gate.CurrentPeriod()
	if period <= k.exec.LastPeriod() {
		return false
	}

	for attempt := 1; attempt <= k.config.MaxAttempts; attempt++ {
		ev, err := k.exec.Execute(ctx)
		if err == nil {
			b.Reset()
			k.logger.Debug("keeper executed",
				log.Uint64("seq", ev.Seq),
				log.Uint64("period", ev.Period),
			)
			return true
		}

		retryable := errors.Is(err, domain.ErrConversionFailed)
		if k.emitter != nil {
			k.emitter.OnExecuteError(err, attempt, retryable)
		}
		switch {
		case errors.Is(err, domain.ErrNothingToSell), errors.Is(err, domain.ErrAlreadyRanThisPeriod):
			k.logger.Debug("keeper skipped period",
				log.Uint64("period", period),
				log.Err(err),
			)
			return false
		case !retryable:
			k.logger.Error("keeper execute failed", log.Uint64("period", period), log.Err(err))
			return false
		}

		k.logger.Warn("keeper execute failed, backing off",
			log.Int("attempt", attempt),
			log.Duration("backoff", b.Current()),
			log.Err(err),
		)
		if attempt == k.config.MaxAttempts {
			break
		}
		if b.Wait(ctx) != nil {
			return false
		}
	}
	return false
}
