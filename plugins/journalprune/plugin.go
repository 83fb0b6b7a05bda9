// Package journalprune provides automatic event journal trimming for
// dcaledger. When enabled, it periodically deletes all but the newest
// events to prevent unbounded database growth. Ledger state is never
// touched; only the event history shrinks.
package journalprune

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/dcaledger/pkg/dcaledger"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// Plugin implements journal pruning.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	checkInterval  time.Duration
	retention      int
	runImmediately bool

	// Runtime state
	journal dcaledger.Journal
	logger  dcaledger.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pruned  int64
}

// Config holds configuration options for the journal prune plugin.
type Config struct {
	// CheckInterval is how often to prune the journal.
	// Default: 6 hours
	CheckInterval time.Duration

	// Retention is the number of newest events to keep.
	// Default: 10000
	Retention int

	// RunImmediately if true, prunes once on startup.
	RunImmediately bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  6 * time.Hour,
		Retention:      10000,
		RunImmediately: true,
	}
}

// New creates a new journal prune plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 6 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10000
	}

	return &Plugin{
		checkInterval:  cfg.CheckInterval,
		retention:      cfg.Retention,
		runImmediately: cfg.RunImmediately,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "journalprune"
}

// Initialize sets up the plugin and starts the prune loop.
func (p *Plugin) Initialize(ctx context.Context, cfg dcaledger.PluginConfig) error {
	p.mu.Lock()
	p.journal = cfg.Journal
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.journal == nil {
		p.logger.Warn("journal prune disabled: store keeps no journal")
		return nil
	}

	pruneCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("journal prune plugin initialized",
		log.Int("retention", p.retention),
		log.Duration("interval", p.checkInterval),
	)

	p.wg.Add(1)
	go p.pruneLoop(pruneCtx)

	return nil
}

// Shutdown stops the prune loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// Pruned returns the total number of events removed since Initialize.
func (p *Plugin) Pruned() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pruned
}

func (p *Plugin) pruneLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.pruneOnce(ctx)
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

func (p *Plugin) pruneOnce(ctx context.Context) {
	removed, err := p.journal.PruneEvents(ctx, p.retention)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("journal prune failed", log.Err(err))
		}
		return
	}
	if removed == 0 {
		return
	}

	p.mu.Lock()
	p.pruned += removed
	p.mu.Unlock()

	p.logger.Info("journal pruned",
		log.Int64("removed", removed),
		log.Int("kept", p.retention),
	)
}

// Ensure Plugin implements dcaledger.Plugin.
var _ dcaledger.Plugin = (*Plugin)(nil)
