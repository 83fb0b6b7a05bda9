package app

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_DoublesUpToMax(t *testing.T) {
	b := newBackoff(100*time.Millisecond, 350*time.Millisecond)
	b.jitter = func() float64 { return 0.5 } // no jitter

	want := []time.Duration{100, 200, 350, 350}
	for i, w := range want {
		if got := b.Next(); got != w*time.Millisecond {
			t.Errorf("Next() #%d = %v, want %v", i, got, w*time.Millisecond)
		}
	}

	b.Reset()
	if b.Current() != 100*time.Millisecond {
		t.Errorf("Current() after Reset = %v", b.Current())
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	tests := []struct {
		name   string
		jitter float64
		want   time.Duration
	}{
		{"low", 0, 80 * time.Millisecond},
		{"high", 1, 120 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackoff(100*time.Millisecond, time.Second)
			b.jitter = func() float64 { return tt.jitter }
			if got := b.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoff_WaitCanceled(t *testing.T) {
	b := newBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := newBackoff(0, 0)
	if b.Current() != DefaultBackoffInitial {
		t.Errorf("Current() = %v, want %v", b.Current(), DefaultBackoffInitial)
	}
}
