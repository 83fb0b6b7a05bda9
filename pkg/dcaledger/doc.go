// Package dcaledger provides an embeddable recurring-purchase ledger service.
//
// Participants deposit an amount of a sell asset to be converted into a buy
// asset over a number of periodic executions. Each execution sells the pooled
// installment of every active allocation in one swap, and each allocation's
// share of the proceeds is computed in constant time from cumulative prices.
//
// # Basic Usage
//
//	cfg := dcaledger.Config{
//	    DataDir: "/var/lib/dcaledger",
//	    Keeper:  true,
//	}
//
//	svc, err := dcaledger.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
//	ev, err := svc.Enter(ctx, "alice", amount, 30)
//
// # Sandbox Assets
//
// The service trades two in-memory tokens whose balances are saved next to
// the ledger. Use [Service.Mint] to fund participants. The venue receives a
// reserve of both tokens when they are first created.
//
// # Stores
//
// "sqlite" (default) persists every operation in one transaction and keeps
// an event journal readable with [Service.Events]. "file" rewrites a JSON
// snapshot. "memory" keeps nothing.
//
// # Plugins
//
// Plugins are initialized on Start and shut down on Stop:
//
//	import "github.com/bft-labs/dcaledger/plugins/configwatcher"
//	import "github.com/bft-labs/dcaledger/plugins/journalprune"
//
//	svc, err := dcaledger.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.DefaultConfig()),
//	    journalprune.WithJournalPrune(journalprune.DefaultConfig()),
//	)
package dcaledger
