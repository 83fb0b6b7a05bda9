package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/dcaledger/pkg/dcaledger"
	"github.com/bft-labs/dcaledger/pkg/log"
)

type fakeController struct {
	mu       sync.Mutex
	interval time.Duration
	sets     int
}

func (c *fakeController) SetPollInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = d
	c.sets++
}

func (c *fakeController) PollInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestPlugin_ReloadsPollInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "poll_interval = \"1m\"\n")

	ctrl := &fakeController{interval: time.Minute}
	plugin := New(Config{DebounceDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := plugin.Initialize(ctx, dcaledger.PluginConfig{
		ConfigPath: path,
		Logger:     log.NewNoopLogger(),
		Controller: ctrl,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	writeConfig(t, path, "poll_interval = \"5s\"\nstore = \"file\"\n")

	waitFor(t, func() bool { return ctrl.PollInterval() == 5*time.Second })

	if err := plugin.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestPlugin_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "poll_interval = \"1m\"\n")

	ctrl := &fakeController{interval: time.Minute}
	plugin := New(Config{DebounceDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := plugin.Initialize(ctx, dcaledger.PluginConfig{
		ConfigPath: path,
		Logger:     log.NewNoopLogger(),
		Controller: ctrl,
	}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	writeConfig(t, filepath.Join(dir, "other.toml"), "poll_interval = \"2s\"\n")
	time.Sleep(200 * time.Millisecond)

	if got := plugin.Reloads(); got != 0 {
		t.Errorf("Reloads() = %d, want 0", got)
	}
	if got := ctrl.PollInterval(); got != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", got)
	}

	if err := plugin.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestPlugin_Reload(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	tests := []struct {
		name         string
		content      string
		wantErr      bool
		wantInterval time.Duration
		wantLevel    zerolog.Level
	}{
		{
			name:         "applies both keys",
			content:      "poll_interval = \"30s\"\nlog_level = \"warn\"\n",
			wantInterval: 30 * time.Second,
			wantLevel:    zerolog.WarnLevel,
		},
		{
			name:         "absent keys leave values unchanged",
			content:      "data_dir = \"/tmp\"\n",
			wantInterval: time.Minute,
			wantLevel:    prev,
		},
		{
			name:         "invalid duration",
			content:      "poll_interval = \"often\"\n",
			wantErr:      true,
			wantInterval: time.Minute,
			wantLevel:    prev,
		},
		{
			name:         "non-positive duration",
			content:      "poll_interval = \"0s\"\n",
			wantErr:      true,
			wantInterval: time.Minute,
			wantLevel:    prev,
		},
		{
			name:         "invalid level",
			content:      "log_level = \"shouty\"\n",
			wantErr:      true,
			wantInterval: time.Minute,
			wantLevel:    prev,
		},
		{
			name:         "invalid toml",
			content:      "this is not toml\n",
			wantErr:      true,
			wantInterval: time.Minute,
			wantLevel:    prev,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zerolog.SetGlobalLevel(prev)
			path := filepath.Join(t.TempDir(), "config.toml")
			writeConfig(t, path, tt.content)

			ctrl := &fakeController{interval: time.Minute}
			plugin := New(DefaultConfig())
			plugin.configPath = path
			plugin.controller = ctrl
			plugin.logger = log.NewNoopLogger()

			err := plugin.reload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("reload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := ctrl.PollInterval(); got != tt.wantInterval {
				t.Errorf("PollInterval = %v, want %v", got, tt.wantInterval)
			}
			if got := zerolog.GlobalLevel(); got != tt.wantLevel {
				t.Errorf("GlobalLevel = %v, want %v", got, tt.wantLevel)
			}
		})
	}
}

func TestPlugin_Name(t *testing.T) {
	plugin := New(DefaultConfig())
	if plugin.Name() != "configwatcher" {
		t.Errorf("Name() = %v, want configwatcher", plugin.Name())
	}
}

func TestPlugin_DisabledWithoutConfigPath(t *testing.T) {
	plugin := New(DefaultConfig())

	ctx := context.Background()
	err := plugin.Initialize(ctx, dcaledger.PluginConfig{
		Logger:     log.NewNoopLogger(),
		Controller: &fakeController{},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if plugin.cancel != nil {
		t.Error("watcher started without a config path")
	}
	if err := plugin.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestPlugin_MissingDirectory(t *testing.T) {
	plugin := New(DefaultConfig())

	err := plugin.Initialize(context.Background(), dcaledger.PluginConfig{
		ConfigPath: filepath.Join(t.TempDir(), "missing", "config.toml"),
		Logger:     log.NewNoopLogger(),
		Controller: &fakeController{},
	})
	if err == nil {
		t.Error("Initialize() expected error for missing directory")
	}
}
