package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker(5 * time.Second)

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "k", func(context.Context) error {
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxSeen.Load())
	assert.Empty(t, l.locks, "released keys are dropped")
}

func TestLocalLocker_Timeout(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "k", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.ErrorIs(t, err, ErrTransient)

	// other keys are unaffected
	ran := false
	require.NoError(t, l.WithLock(context.Background(), "other", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker(time.Minute)
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "k", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.WithLock(ctx, "k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalLocker_PropagatesError(t *testing.T) {
	l := NewLocalLocker(time.Second)

	err := l.WithLock(context.Background(), "k", func(context.Context) error { return ErrSlotAlreadyBooked })
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	// the lock was released despite the error
	require.NoError(t, l.WithLock(context.Background(), "k", func(context.Context) error { return nil }))
}

func TestAvailabilityLockKey(t *testing.T) {
	id := uuid.MustParse("6f1c1d0e-1111-4e7b-9a55-0123456789ab")
	assert.Equal(t, "availability:6f1c1d0e-1111-4e7b-9a55-0123456789ab:2030-01-02", AvailabilityLockKey(id, "2030-01-02"))
}
