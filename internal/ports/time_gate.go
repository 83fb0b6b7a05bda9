package ports

// TimeGate reports the current execution period. At most one execution
// happens per period.
type TimeGate interface {
	CurrentPeriod() uint64
}
