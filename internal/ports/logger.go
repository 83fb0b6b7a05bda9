package ports

import "github.com/bft-labs/dcaledger/pkg/log"

// Logger is the structured logger used across the application.
type Logger = log.Logger

// Field is a structured logging key-value pair.
type Field = log.Field
