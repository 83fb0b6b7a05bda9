package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/dcaledger/internal/cliconfig"
	"github.com/bft-labs/dcaledger/pkg/log"
)

const helpDescription = `
Pool recurring purchases and settle them once per period at constant cost.

Each participant deposits a fixed amount for a number of executions. Every
period the keeper sells the pooled installment in a single swap, and every
allocation accrues its share of the proceeds without being touched.

Configuration is read from $HOME/.dcaledger/config.toml, then DCALEDGER_*
environment variables, then flags.
`

var exampleUsage = strings.TrimSpace(`
  dcaledger serve --data-dir ~/.dcaledger/data --period 24h
  dcaledger mint TKN-A alice 1000
  dcaledger enter alice 10 30
  dcaledger allocation 0
  dcaledger simulate examples/basic.yaml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the configuration shared by all commands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

// load applies the config file and environment under any flags set on cmd,
// then validates the result.
func (c *cli) load(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
		c.cfgPath = cfgFile
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	level, err := log.ParseLevel(c.cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetGlobalLevel(level)
	return nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "dcaledger",
		Short:         "Recurring-purchase accrual ledger",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.dcaledger/config.toml)")
	pf.StringVar(&c.cfg.ServerURL, "server", c.cfg.ServerURL, "ledger API base URL used by client commands")
	pf.DurationVar(&c.cfg.HTTPTimeout, "timeout", c.cfg.HTTPTimeout, "HTTP timeout")
	pf.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newEnterCmd(c),
		newExecuteCmd(c),
		newExitCmd(c),
		newAllocationCmd(c),
		newStatusCmd(c),
		newMintCmd(c),
		newHoldingsCmd(c),
		newEventsCmd(c),
		newSimulateCmd(c),
	)
	return root
}

func main() {
	c := &cli{
		cfg: cliconfig.DefaultConfig(),
		log: cliconfig.Logger(),
	}

	if err := newRootCmd(c).Execute(); err != nil {
		c.log.Error().Err(err).Msg("dcaledger")
		os.Exit(1)
	}
}
