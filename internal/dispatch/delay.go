package dispatch

import (
	"context"
	"math/rand"
	"time"
)

// Delay pauses for a uniformly random duration in [Min, Max] before each
// send.
type Delay struct {
	Min time.Duration
	Max time.Duration

	// randN returns a value in [0, n). Defaults to rand.Int63n.
	randN func(n int64) int64
}

// Next returns the next pause length.
func (d Delay) Next() time.Duration {
	span := int64(d.Max - d.Min)
	if span <= 0 {
		return d.Min
	}
	randN := d.randN
	if randN == nil {
		randN = rand.Int63n
	}
	return d.Min + time.Duration(randN(span+1))
}

// Sleep waits for dur or until ctx is done.
func Sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
