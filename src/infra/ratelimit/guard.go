package ratelimit

import (
	"context"
	"time"
)

// Guard combines a token bucket and a sliding window in front of an outbound
// provider. Wait blocks until both mechanisms admit a request, then records
// it.
type Guard struct {
	bucket *TokenBucket
	window *SlidingWindow
}

// NewGuard creates a guard from the two limiters. Either may be nil, in which
// case that mechanism is skipped (LRCLib and Lyrics.ovh run unguarded).
func NewGuard(bucket *TokenBucket, window *SlidingWindow) *Guard {
	return &Guard{bucket: bucket, window: window}
}

// Wait blocks until a request is admitted or the context is cancelled.
func (g *Guard) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	if g.bucket != nil {
		for !g.bucket.Consume(1) {
			if err := sleep(ctx, g.bucket.TimeUntilAvailable(1)); err != nil {
				return err
			}
		}
	}
	if g.window != nil {
		if !g.window.CanMakeRequest() {
			if err := sleep(ctx, g.window.TimeUntilNextAvailable()); err != nil {
				return err
			}
		}
		g.window.RecordRequest()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
