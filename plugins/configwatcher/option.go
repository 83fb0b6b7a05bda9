package configwatcher

import "github.com/bft-labs/dcaledger/pkg/dcaledger"

// WithConfigWatcher returns a dcaledger Option that enables config file
// watching. When enabled, the plugin reloads poll_interval and log_level
// from the service's config file whenever it changes.
//
// Usage:
//
//	svc, err := dcaledger.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        DebounceDelay: 250 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) dcaledger.Option {
	plugin := New(cfg)
	return dcaledger.WithPlugin(plugin)
}

// WithDefaultConfigWatcher returns a dcaledger Option that enables config
// watching with default settings (debounce 100ms).
func WithDefaultConfigWatcher() dcaledger.Option {
	return WithConfigWatcher(DefaultConfig())
}
