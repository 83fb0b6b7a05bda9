package dcaledger

import "github.com/bft-labs/dcaledger/pkg/log"

// Option configures optional behavior of a Service.
type Option func(*options)

type options struct {
	httpClient   HTTPClient
	logger       Logger
	eventHandler EventHandler
	plugins      []Plugin
	venue        Venue
	gate         TimeGate
	repo         Repository
}

func defaultOptions() options {
	return options{logger: log.NewNoopLogger()}
}

// WithHTTPClient sets the client used by the HTTP venue.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventHandler sets a handler for service events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the service starts.
// Plugins are initialized in registration order and shut down in reverse.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithVenue replaces the configured venue. The venue settles against the
// assets passed in each swap request, matched by symbol.
func WithVenue(v Venue) Option {
	return func(o *options) {
		o.venue = v
	}
}

// WithTimeGate replaces the wall-clock period gate.
func WithTimeGate(g TimeGate) Option {
	return func(o *options) {
		o.gate = g
	}
}

// WithRepository replaces the configured store. If the repository also
// implements Journal, its event history is exposed.
func WithRepository(r Repository) Option {
	return func(o *options) {
		o.repo = r
	}
}
