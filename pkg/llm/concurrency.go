package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jervis-ai/jervis/pkg/config"
)

// ConcurrencyManager enforces per-provider in-flight request limits.
// INTERRUPTIBLE providers (GPU-bound, remote APIs) go through a weighted
// semaphore sized from configuration; NONBLOCKING providers (CPU-bound local
// models) bypass it entirely. Semaphores are created lazily per provider.
type ConcurrencyManager struct {
	registry *config.LLMRegistry

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted

	// inFlight tracks permits currently held, per provider. Used for
	// health reporting and tests.
	inFlight sync.Map // provider → *int64
}

// NewConcurrencyManager creates a manager over the provider registry.
func NewConcurrencyManager(registry *config.LLMRegistry) *ConcurrencyManager {
	return &ConcurrencyManager{
		registry: registry,
		sems:     make(map[string]*semaphore.Weighted),
	}
}

// WithPermit runs fn while holding one permit of the provider's semaphore.
// Release happens on every exit path, including panics and cancellation.
// Waiters are served in roughly arrival order but ordering is not strict.
func (m *ConcurrencyManager) WithPermit(ctx context.Context, providerName string, fn func(context.Context) error) error {
	provider, err := m.registry.Provider(providerName)
	if err != nil {
		return err
	}
	if provider.Mode == config.ModeNonblocking {
		return fn(ctx)
	}

	sem := m.semaphoreFor(providerName, provider.MaxConcurrentRequests)
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring permit for provider %s: %w", providerName, err)
	}
	counter := m.counterFor(providerName)
	atomic.AddInt64(counter, 1)
	defer func() {
		atomic.AddInt64(counter, -1)
		sem.Release(1)
	}()

	return fn(ctx)
}

// InFlight returns the number of permits currently held for a provider.
func (m *ConcurrencyManager) InFlight(providerName string) int64 {
	return atomic.LoadInt64(m.counterFor(providerName))
}

func (m *ConcurrencyManager) semaphoreFor(name string, capacity int) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.sems[name]
	if !ok {
		sem = semaphore.NewWeighted(int64(capacity))
		m.sems[name] = sem
	}
	return sem
}

func (m *ConcurrencyManager) counterFor(name string) *int64 {
	v, _ := m.inFlight.LoadOrStore(name, new(int64))
	return v.(*int64)
}
