package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dcaledger/internal/httpapi"
	"github.com/bft-labs/dcaledger/pkg/dcaledger"
	"github.com/bft-labs/dcaledger/pkg/log"
	"github.com/bft-labs/dcaledger/plugins/configwatcher"
	"github.com/bft-labs/dcaledger/plugins/journalprune"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger, its keeper and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			return serve(c)
		},
	}

	cfg := &c.cfg
	f := cmd.Flags()
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the ledger database and token books")
	f.StringVar(&cfg.Store, "store", cfg.Store, "ledger store: sqlite, file or memory")
	f.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP API listen address")
	f.DurationVar(&cfg.Period, "period", cfg.Period, "execution period")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "keeper poll interval")
	f.BoolVar(&cfg.Keeper, "keeper", cfg.Keeper, "execute automatically once per period")
	f.IntVar(&cfg.Decimals, "decimals", cfg.Decimals, "decimals of both assets")
	f.StringVar(&cfg.SellSymbol, "sell-symbol", cfg.SellSymbol, "symbol of the asset being sold")
	f.StringVar(&cfg.BuySymbol, "buy-symbol", cfg.BuySymbol, "symbol of the asset being bought")
	f.StringVar(&cfg.Venue, "venue", cfg.Venue, "conversion venue: fixed or http")
	f.StringVar(&cfg.VenueRate, "venue-rate", cfg.VenueRate, "fixed venue rate, buy units per sell unit")
	f.StringVar(&cfg.VenueReserve, "venue-reserve", cfg.VenueReserve, "buy-asset reserve minted to a fresh fixed venue")
	f.StringVar(&cfg.VenueURL, "venue-url", cfg.VenueURL, "HTTP venue base URL")
	f.StringVar(&cfg.VenueAuthKey, "venue-auth-key", cfg.VenueAuthKey, "HTTP venue API key")
	f.Float64Var(&cfg.VenueRPS, "venue-rps", cfg.VenueRPS, "HTTP venue request rate limit (0 disables)")
	f.IntVar(&cfg.JournalRetention, "journal-retention", cfg.JournalRetention, "events kept in the journal (0 keeps all)")
	return cmd
}

func serve(c *cli) error {
	cfg := c.cfg

	logCfg := cfg
	if len(logCfg.VenueAuthKey) > 0 {
		logCfg.VenueAuthKey = "*****"
	}
	c.log.Info().Interface("config", logCfg).Msg("configuration")

	adapter := log.NewZerologAdapterWithLogger(c.log)
	opts := []dcaledger.Option{
		dcaledger.WithLogger(adapter),
		configwatcher.WithConfigWatcher(configwatcher.DefaultConfig()),
	}
	if cfg.JournalRetention > 0 {
		pc := journalprune.DefaultConfig()
		pc.Retention = cfg.JournalRetention
		opts = append(opts, journalprune.WithJournalPrune(pc))
	}

	svc, err := dcaledger.New(cfg.Library(c.cfgPath), opts...)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}

	server := httpapi.NewServer(svc, adapter)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(ctx, cfg.ListenAddr)
	}()

	doneCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if svc.Status() == dcaledger.StateCrashed {
					close(doneCh)
					return
				}
			}
		}
	}()

	var serveErr error
	select {
	case <-sigCh:
		c.log.Info().Msg("received signal, stopping...")
	case err := <-errCh:
		serveErr = err
	case <-doneCh:
		c.log.Error().Msg("ledger crashed")
	}

	cancel()
	if serveErr == nil {
		serveErr = <-errCh
	}
	if err := svc.Stop(); err != nil && !errors.Is(err, dcaledger.ErrNotRunning) {
		return fmt.Errorf("stop ledger: %w", err)
	}
	if serveErr != nil {
		return fmt.Errorf("http api: %w", serveErr)
	}
	return nil
}
