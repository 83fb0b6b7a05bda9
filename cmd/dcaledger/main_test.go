package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bft-labs/dcaledger/internal/cliconfig"
	"github.com/bft-labs/dcaledger/internal/httpapi"
	"github.com/bft-labs/dcaledger/pkg/dcaledger"
	"github.com/bft-labs/dcaledger/pkg/log"
)

func newTestCLI() *cli {
	return &cli{cfg: cliconfig.DefaultConfig(), log: zerolog.Nop()}
}

func run(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSimulateCommand(t *testing.T) {
	out, err := run(t, newTestCLI(), "simulate", "../../internal/scenario/testdata/scenarios/basic.yaml")
	if err != nil {
		t.Fatalf("simulate error = %v", err)
	}
	if !strings.Contains(out, "holdings alice TKN-A=970 TKN-B=60") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSimulateCommandReportsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := "name: bad\nrate: \"1\"\nsteps:\n  - execute: {}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, newTestCLI(), "simulate", path)
	if err == nil {
		t.Fatal("simulate expected error for failing scenario")
	}
	if !strings.Contains(out, "error=already_ran_this_period (unexpected)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestLoadAppliesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "server_url = \"http://file:1\"\nlog_level = \"warn\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	c := newTestCLI()
	c.cfg.DataDir = dir

	// Nothing listens on the flag's address, so status fails after loading.
	if _, err := run(t, c, "--config", path, "--server", "http://127.0.0.1:1", "status"); err == nil {
		t.Fatal("status expected a connection error")
	}

	if c.cfg.ServerURL != "http://127.0.0.1:1" {
		t.Errorf("ServerURL = %v, want flag value", c.cfg.ServerURL)
	}
	if c.cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn", c.cfg.LogLevel)
	}
	if c.cfgPath != path {
		t.Errorf("cfgPath = %v, want %v", c.cfgPath, path)
	}
}

func TestClientCommands(t *testing.T) {
	svc, err := dcaledger.New(dcaledger.Config{Store: dcaledger.StoreMemory, Decimals: 6})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()
	ts := httptest.NewServer(httpapi.NewServer(svc, log.NewNoopLogger()).Handler())
	defer ts.Close()

	c := newTestCLI()
	c.cfg.Store = dcaledger.StoreMemory

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"mint", "TKN-A", "alice", "100"}, "alice: 100 TKN-A, 0 TKN-B"},
		{[]string{"enter", "alice", "2.5", "4"}, "allocation 0 entered: 2.5 TKN-A x4 (seq 1..4)"},
		{[]string{"allocation", "0"}, "unsold:     10 TKN-A"},
		{[]string{"holdings", "alice"}, "alice: 90 TKN-A, 0 TKN-B"},
		{[]string{"exit", "alice", "0"}, "allocation 0 exited after 0 executions: refunded 10 TKN-A, credited 0 TKN-B"},
		{[]string{"status"}, `"sell_symbol": "TKN-A"`},
	}
	for _, st := range steps {
		args := append([]string{"--server", ts.URL}, st.args...)
		out, err := run(t, c, args...)
		if err != nil {
			t.Fatalf("%v: error = %v", st.args, err)
		}
		if !strings.Contains(out, st.want) {
			t.Errorf("%v: output %q does not contain %q", st.args, out, st.want)
		}
	}

	if _, err := run(t, c, "--server", ts.URL, "exit", "alice", "x"); err == nil {
		t.Error("exit with a bad id should fail")
	}
}
