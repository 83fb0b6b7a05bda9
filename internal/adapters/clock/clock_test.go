package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodGate(t *testing.T) {
	now := time.Unix(0, 0).Add(3*DefaultPeriod + time.Hour)
	g := NewPeriodGate(0, func() time.Time { return now })

	assert.Equal(t, DefaultPeriod, g.Period())
	assert.Equal(t, uint64(3), g.CurrentPeriod())
	assert.Equal(t, time.Unix(0, 0).UTC().Add(4*DefaultPeriod), g.NextPeriodAt())

	now = now.Add(23 * time.Hour)
	assert.Equal(t, uint64(4), g.CurrentPeriod())
}

func TestPeriodGateCustomPeriod(t *testing.T) {
	now := time.Unix(125, 0)
	g := NewPeriodGate(time.Minute, func() time.Time { return now })
	assert.Equal(t, uint64(2), g.CurrentPeriod())
}

func TestPeriodGateBeforeEpoch(t *testing.T) {
	g := NewPeriodGate(time.Hour, func() time.Time { return time.Unix(-10, 0) })
	assert.Equal(t, uint64(0), g.CurrentPeriod())
}

func TestManualGate(t *testing.T) {
	g := NewManualGate(5)
	assert.Equal(t, uint64(5), g.CurrentPeriod())
	assert.Equal(t, uint64(6), g.Advance(1))
	assert.Equal(t, uint64(9), g.Advance(3))
	assert.Equal(t, uint64(9), g.CurrentPeriod())
}
