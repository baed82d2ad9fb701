package chrono

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// FakeTime is a TimeAPI whose sleeps return immediately. Every requested sleep is
// recorded and advances the fake clock by the same amount.
type FakeTime struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeTime(now time.Time) *FakeTime {
	return &FakeTime{now: now}
}

func (f *FakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	f.mu.Unlock()
	// lets the other stage make progress when both run on fake clocks
	runtime.Gosched()
	return ctx.Err()
}

// Sleeps returns a copy of every duration passed to Sleep so far.
func (f *FakeTime) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
