package orch

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads and the inter-pass sleep so tests
// can simulate hours of elapsed time without waiting.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewClock returns the production wall clock.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
