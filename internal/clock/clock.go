// Package clock provides the time source every wait point in hwgw goes through.
//
// Hosts and the controller share one Clock so that operation durations reported by a host
// and the sleeps the controller takes are measured in the same (possibly scaled) time.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reports the current time and suspends the caller.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scaled runs simulated time faster than real time: with scale 60 one simulated minute
// passes per real second.
type Scaled struct {
	scale     float64
	startReal time.Time
	startSim  time.Time
}

func NewScaled(scale float64) *Scaled {
	if scale <= 0 {
		scale = 1
	}
	now := time.Now()
	return &Scaled{scale: scale, startReal: now, startSim: now}
}

func (c *Scaled) Now() time.Time {
	elapsed := time.Since(c.startReal)
	return c.startSim.Add(time.Duration(float64(elapsed) * c.scale))
}

func (c *Scaled) Sleep(ctx context.Context, d time.Duration) error {
	return Real{}.Sleep(ctx, c.ToReal(d))
}

// ToReal converts a simulated duration to the real duration it takes.
func (c *Scaled) ToReal(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	realD := time.Duration(float64(d) / c.scale)
	if realD < time.Millisecond {
		return time.Millisecond
	}
	return realD
}

// Fake is a manually driven clock for tests. Sleep advances time instantly.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.sleeps = append(f.sleeps, d)
	hook := f.onSleep
	f.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Advance moves the clock forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Sleeps returns every duration passed to Sleep, in order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// OnSleep registers a hook run after every Sleep, outside the clock's lock.
func (f *Fake) OnSleep(fn func(d time.Duration)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSleep = fn
}
