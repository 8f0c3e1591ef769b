package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jervis-ai/jervis/pkg/config"
)

func TestWithPermitCapsInFlightRequests(t *testing.T) {
	registry := testRegistry() // primary: INTERRUPTIBLE, max 2
	m := NewConcurrencyManager(registry)

	var (
		current int64
		peak    int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithPermit(context.Background(), "primary", func(context.Context) error {
				n := atomic.AddInt64(&current, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2), atomic.LoadInt64(&peak))
	assert.Equal(t, int64(0), m.InFlight("primary"))
}

func TestWithPermitNonblockingBypassesSemaphore(t *testing.T) {
	registry := testRegistry() // fallback: NONBLOCKING
	m := NewConcurrencyManager(registry)

	var (
		current int64
		peak    int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithPermit(context.Background(), "fallback", func(context.Context) error {
				n := atomic.AddInt64(&current, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Greater(t, atomic.LoadInt64(&peak), int64(2))
	assert.Equal(t, int64(0), m.InFlight("fallback"))
}

func TestWithPermitReleasesOnError(t *testing.T) {
	registry := testRegistry()
	m := NewConcurrencyManager(registry)

	err := m.WithPermit(context.Background(), "primary", func(context.Context) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(0), m.InFlight("primary"))

	// The permit must be reusable after the failure.
	err = m.WithPermit(context.Background(), "primary", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithPermitCancelledWhileWaiting(t *testing.T) {
	registry := testRegistry()
	m := NewConcurrencyManager(registry)

	hold := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithPermit(context.Background(), "primary", func(context.Context) error {
				started <- struct{}{}
				<-hold
				return nil
			})
		}()
	}
	<-started
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.WithPermit(ctx, "primary", func(context.Context) error {
		t.Fatal("must not run while the semaphore is full")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(hold)
	wg.Wait()
}

func TestWithPermitUnknownProvider(t *testing.T) {
	m := NewConcurrencyManager(testRegistry())
	err := m.WithPermit(context.Background(), "nope", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrProviderNotFound)
}
