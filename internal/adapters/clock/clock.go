// Package clock provides time gates that number execution periods.
package clock

import (
	"sync/atomic"
	"time"
)

// DefaultPeriod is one day.
const DefaultPeriod = 24 * time.Hour

// PeriodGate numbers periods of fixed length since an epoch:
// floor((now - epoch) / period).
type PeriodGate struct {
	epoch  time.Time
	period time.Duration
	now    func() time.Time
}

// NewPeriodGate creates a gate with the given period length counted from
// the Unix epoch. A non-positive period falls back to DefaultPeriod.
func NewPeriodGate(period time.Duration, now func() time.Time) *PeriodGate {
	if period <= 0 {
		period = DefaultPeriod
	}
	if now == nil {
		now = time.Now
	}
	return &PeriodGate{epoch: time.Unix(0, 0).UTC(), period: period, now: now}
}

// Period returns the period length.
func (g *PeriodGate) Period() time.Duration { return g.period }

// CurrentPeriod returns the number of the period containing now.
func (g *PeriodGate) CurrentPeriod() uint64 {
	elapsed := g.now().Sub(g.epoch)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / g.period)
}

// NextPeriodAt returns when the period after the current one begins.
func (g *PeriodGate) NextPeriodAt() time.Time {
	next := g.CurrentPeriod() + 1
	return g.epoch.Add(time.Duration(next) * g.period)
}

// ManualGate is a gate whose period only changes through Advance.
// It is safe for concurrent use.
type ManualGate struct {
	period atomic.Uint64
}

// NewManualGate creates a gate starting at period start.
func NewManualGate(start uint64) *ManualGate {
	g := &ManualGate{}
	g.period.Store(start)
	return g
}

// CurrentPeriod returns the current period.
func (g *ManualGate) CurrentPeriod() uint64 {
	return g.period.Load()
}

// Advance moves the gate n periods forward and returns the new period.
func (g *ManualGate) Advance(n uint64) uint64 {
	return g.period.Add(n)
}
