// Package admission bounds how many expensive inference calls may run at
// once across the whole process. Every pipeline stage call acquires one
// slot from a fixed-size pool before it is allowed to spend money.
package admission

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

// ErrOverloaded is returned when a slot could not be acquired within the
// configured wait bound. It is a hard, non-retried failure for that
// acquisition attempt and has no side effect.
var ErrOverloaded = goerr.New("service overloaded: admission wait exceeded")

const (
	DefaultSlots = 5
	DefaultWait  = 30 * time.Second
)

// Controller is a fixed-size slot pool. Construct one per process and pass
// the handle into everything that performs expensive calls; the bound is
// only meaningful when a single instance guards them all.
type Controller struct {
	slots chan struct{}
	wait  time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithWait overrides the maximum time an acquisition may block.
func WithWait(d time.Duration) Option {
	return func(c *Controller) {
		c.wait = d
	}
}

// New creates a Controller with n slots. Non-positive n falls back to the
// default pool size.
func New(n int, opts ...Option) *Controller {
	if n <= 0 {
		n = DefaultSlots
	}

	c := &Controller{
		slots: make(chan struct{}, n),
		wait:  DefaultWait,
	}
	for _, opt := range opts {
		opt(c)
	}

	for range n {
		c.slots <- struct{}{}
	}

	return c
}

// Size returns the configured slot count.
func (c *Controller) Size() int {
	return cap(c.slots)
}

// acquire blocks until a slot is free, the wait bound elapses, or ctx is
// done. On timeout it returns ErrOverloaded without side effects.
func (c *Controller) acquire(ctx context.Context) error {
	timer := time.NewTimer(c.wait)
	defer timer.Stop()

	select {
	case <-c.slots:
		return nil
	case <-timer.C:
		logging.From(ctx).Warn("admission wait exceeded", "wait", c.wait)
		return goerr.Wrap(ErrOverloaded, "acquire timed out", goerr.V("wait", c.wait))
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "canceled while waiting for admission slot")
	}
}

// release returns a slot to the pool.
func (c *Controller) release() {
	c.slots <- struct{}{}
}

// WithSlot runs fn with exactly one slot held. The slot is released on
// every exit path, including panics inside fn.
func (c *Controller) WithSlot(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	return fn(ctx)
}

// InSlot runs fn under a slot and passes its result through. It exists
// because methods cannot be generic.
func InSlot[T any](ctx context.Context, c *Controller, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.WithSlot(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}
