// Package pacing spaces out simulated students so that rapid connection
// churn does not exhaust local ephemeral ports.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDelay is the pause between two students.
const DefaultDelay = 100 * time.Millisecond

// Pacer waits a fixed delay after each student and, when a maximum rate is
// set, also holds the run under that many students per second.
type Pacer struct {
	delay   time.Duration
	limiter *rate.Limiter
	// injectable for testing
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer. maxRate is in students per second; 0 disables the cap.
func NewPacer(delay time.Duration, maxRate float64) *Pacer {
	p := &Pacer{
		delay:     delay,
		sleepFunc: sleep,
	}
	if maxRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(maxRate), 1)
	}
	return p
}

// Delay returns the configured fixed delay.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Wait blocks for the fixed delay, then for a rate token if capped.
// It returns ctx.Err() if the context ends first.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.delay > 0 {
		if err := p.sleepFunc(ctx, p.delay); err != nil {
			return err
		}
	}
	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
