// Package log provides the logging abstraction used by dcaledger components.
//
// The Logger interface can be implemented by any logging library. A zerolog
// adapter and a no-op logger are provided.
//
// # Usage
//
//	level, err := log.ParseLevel(cfg.LogLevel)
//	if err != nil {
//		return err
//	}
//	logger := log.NewZerologAdapter(level)
//	logger.Info("allocation entered",
//		log.Uint64("id", id),
//		log.Stringer("amount", amount),
//	)
//
// Use the no-op logger in tests:
//
//	logger := log.NewNoopLogger()
package log
