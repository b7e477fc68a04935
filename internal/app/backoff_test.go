package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_DoublesUpToMax(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 350*time.Millisecond)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		350 * time.Millisecond,
		350 * time.Millisecond,
	}
	for i, base := range want {
		if b.Current() != base {
			t.Fatalf("step %d: Current() = %v, want %v", i, b.Current(), base)
		}
		d := b.Next()
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)
		if d < lo || d > hi {
			t.Errorf("step %d: Next() = %v, want within [%v, %v]", i, d, lo, hi)
		}
	}

	b.Reset()
	if b.Current() != 100*time.Millisecond {
		t.Errorf("Current() after Reset = %v, want 100ms", b.Current())
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0)
	if b.Current() != DefaultBackoffInitial {
		t.Errorf("initial = %v, want %v", b.Current(), DefaultBackoffInitial)
	}
	if b.max != DefaultBackoffMax {
		t.Errorf("max = %v, want %v", b.max, DefaultBackoffMax)
	}

	b = NewBackoff(time.Second, time.Millisecond)
	if b.max != time.Second {
		t.Errorf("max below initial not raised: %v", b.max)
	}
}

func TestBackoff_WaitHonoursContext(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := b.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() ignored cancelled context")
	}
}

func TestBackoff_WaitElapses(t *testing.T) {
	b := NewBackoff(5*time.Millisecond, 5*time.Millisecond)
	if err := b.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}
