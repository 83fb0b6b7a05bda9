// Package configwatcher provides live config reloading for dcaledger.
// When enabled, it watches the service's TOML config file and applies
// changes to the keeper poll interval and the global log level without
// a restart.
package configwatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/dcaledger/pkg/dcaledger"
	"github.com/bft-labs/dcaledger/pkg/log"
)

// Plugin implements config watching functionality.
// Only the keys that are safe to change at runtime are applied; everything
// else in the file is ignored until the next start.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	debounceDelay time.Duration

	// Runtime state
	configPath string
	logger     dcaledger.Logger
	controller dcaledger.Controller
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	debounce   *time.Timer
	reloads    int
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// reloadable is the subset of the config file applied at runtime.
type reloadable struct {
	PollInterval string `toml:"poll_interval"`
	LogLevel     string `toml:"log_level"`
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}

	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize sets up the plugin and starts the file watcher.
func (p *Plugin) Initialize(ctx context.Context, cfg dcaledger.PluginConfig) error {
	p.mu.Lock()
	p.configPath = cfg.ConfigPath
	p.logger = cfg.Logger
	p.controller = cfg.Controller
	p.mu.Unlock()

	if p.configPath == "" || p.controller == nil {
		p.logger.Warn("config watcher disabled: no config file")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(p.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.configPath), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher plugin initialized", log.String("path", p.configPath))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns how many times the config file has been applied.
func (p *Plugin) Reloads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reloads
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	target := filepath.Base(p.configPath)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.reload(); err != nil {
			p.logger.Warn("config reload failed", log.Err(err))
		}
	})
}

// reload reads the config file and applies the runtime keys. A key that is
// absent leaves the current value unchanged.
func (p *Plugin) reload() error {
	b, err := os.ReadFile(p.configPath)
	if err != nil {
		return err
	}
	var rc reloadable
	if err := toml.Unmarshal(b, &rc); err != nil {
		return fmt.Errorf("parse %s: %w", p.configPath, err)
	}

	if rc.PollInterval != "" {
		d, err := time.ParseDuration(rc.PollInterval)
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
		if d != p.controller.PollInterval() {
			p.controller.SetPollInterval(d)
			p.logger.Info("poll interval reloaded", log.Duration("poll_interval", d))
		}
	}

	if rc.LogLevel != "" {
		level, err := log.ParseLevel(rc.LogLevel)
		if err != nil {
			return err
		}
		log.SetGlobalLevel(level)
		p.logger.Info("log level reloaded", log.String("log_level", level.String()))
	}

	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	return nil
}

// Ensure Plugin implements dcaledger.Plugin.
var _ dcaledger.Plugin = (*Plugin)(nil)
