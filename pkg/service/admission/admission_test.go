package admission_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/truthcast/pkg/service/admission"
)

func TestBoundNeverExceeded(t *testing.T) {
	const slots = 3
	const workers = 12

	ctrl := admission.New(slots, admission.WithWait(5*time.Second))

	var current, peak int64
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt64(&current, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil
			})
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	gt.True(t, atomic.LoadInt64(&peak) <= slots)
	gt.True(t, atomic.LoadInt64(&peak) > 0)
}

func TestOverloadAfterWaitBound(t *testing.T) {
	const wait = 50 * time.Millisecond

	ctrl := admission.New(1, admission.WithWait(wait))

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	start := time.Now()
	err := ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
		return nil
	})
	elapsed := time.Since(start)

	gt.Error(t, err)
	gt.True(t, errors.Is(err, admission.ErrOverloaded))
	gt.True(t, elapsed >= wait)
	gt.True(t, elapsed < wait*10)
}

func TestSlotReleasedOnError(t *testing.T) {
	ctrl := admission.New(1, admission.WithWait(time.Second))

	wantErr := errors.New("stage failed")
	err := ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	gt.True(t, errors.Is(err, wantErr))

	// The slot must be free again.
	err = ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
		return nil
	})
	gt.NoError(t, err)
}

func TestSlotReleasedOnPanic(t *testing.T) {
	ctrl := admission.New(1, admission.WithWait(time.Second))

	func() {
		defer func() {
			gt.V(t, recover()).NotNil()
		}()
		_ = ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
			panic("stage blew up")
		})
	}()

	err := ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
		return nil
	})
	gt.NoError(t, err)
}

func TestContextCancelWhileWaiting(t *testing.T) {
	ctrl := admission.New(1, admission.WithWait(5*time.Second))

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = ctrl.WithSlot(context.Background(), func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ctrl.WithSlot(ctx, func(ctx context.Context) error {
		return nil
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestInSlotResult(t *testing.T) {
	ctrl := admission.New(2, admission.WithWait(time.Second))

	got, err := admission.InSlot(context.Background(), ctrl, func(ctx context.Context) (string, error) {
		return "value", nil
	})
	gt.NoError(t, err)
	gt.Equal(t, got, "value")
}

func TestDefaultSize(t *testing.T) {
	gt.Equal(t, admission.New(0).Size(), admission.DefaultSlots)
	gt.Equal(t, admission.New(7).Size(), 7)
}
