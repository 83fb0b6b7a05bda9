package app

import "errors"

// Lifecycle errors returned by Start and Stop.
var (
	// ErrAlreadyRunning is returned when starting a service that is running.
	ErrAlreadyRunning = errors.New("dcaledger: already running")

	// ErrNotRunning is returned when stopping a service that isn't running.
	ErrNotRunning = errors.New("dcaledger: not running")

	// ErrShutdownTimeout is returned when workers don't stop in time.
	ErrShutdownTimeout = errors.New("dcaledger: shutdown timeout")
)
