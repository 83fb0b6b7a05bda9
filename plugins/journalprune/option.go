package journalprune

import "github.com/bft-labs/dcaledger/pkg/dcaledger"

// WithJournalPrune returns a dcaledger Option that enables periodic journal
// pruning. When enabled, the plugin keeps only the newest Retention events
// in the store's journal.
//
// Usage:
//
//	svc, err := dcaledger.New(cfg,
//	    journalprune.WithJournalPrune(journalprune.Config{
//	        CheckInterval: time.Hour,
//	        Retention:     50000,
//	    }),
//	)
func WithJournalPrune(cfg Config) dcaledger.Option {
	plugin := New(cfg)
	return dcaledger.WithPlugin(plugin)
}

// WithDefaultJournalPrune returns a dcaledger Option that enables pruning
// with default settings (check every 6h, keep 10000 events).
func WithDefaultJournalPrune() dcaledger.Option {
	return WithJournalPrune(DefaultConfig())
}
