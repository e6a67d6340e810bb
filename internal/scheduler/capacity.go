package scheduler

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Capacity bounds how many instances execute at once.
type Capacity interface {
	Acquire(ctx context.Context) error
	Release()
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Acquire(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Release()                          {}

// Bounded allows at most n concurrent instances.
type Bounded struct {
	sem *semaphore.Weighted
}

// NewBounded returns a Capacity with n slots. n < 1 is treated as 1.
func NewBounded(n int64) *Bounded {
	if n < 1 {
		n = 1
	}
	return &Bounded{sem: semaphore.NewWeighted(n)}
}

func (b *Bounded) Acquire(ctx context.Context) error { return b.sem.Acquire(ctx, 1) }
func (b *Bounded) Release()                          { b.sem.Release(1) }
