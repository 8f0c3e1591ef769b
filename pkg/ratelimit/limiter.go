// Package ratelimit implements adaptive per-domain request pacing. Every
// outbound call to an external source passes through Acquire, which spaces
// requests in three phases: a short burst, a normal cruise, and a sustained
// trickle for long crawls. Private and internal addresses bypass the limiter.
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jervis-ai/jervis/pkg/config"
)

// phase is the pacing regime a domain is currently in.
type phase int

const (
	phaseBurst phase = iota + 1
	phaseNormal
	phaseSustained
)

func (p phase) String() string {
	switch p {
	case phaseBurst:
		return "burst"
	case phaseNormal:
		return "normal"
	default:
		return "sustained"
	}
}

// domainState tracks one domain's request count and phase buckets.
type domainState struct {
	itemCount int64
	phase     phase
	// One token bucket per phase, created eagerly: a phase switch must not
	// grant a fresh burst.
	buckets [3]*rate.Limiter
}

// Limiter gates outbound requests per domain.
type Limiter struct {
	cfg *config.RateLimitConfig

	mu      sync.Mutex
	domains map[string]*domainState
}

// NewLimiter creates a Limiter with the given configuration.
func NewLimiter(cfg *config.RateLimitConfig) *Limiter {
	return &Limiter{
		cfg:     cfg,
		domains: make(map[string]*domainState),
	}
}

// Acquire suspends until the domain of rawURL may be called. URLs without a
// parseable domain and private/internal addresses return immediately.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) error {
	domain := parseDomain(rawURL)
	if domain == "" {
		slog.Warn("Rate limiter could not parse domain, skipping", "url", rawURL)
		return nil
	}
	if l.isPrivate(domain) {
		return nil
	}

	state, ph, count, transitioned := l.advance(domain)
	if transitioned {
		slog.Info("Rate limit phase transition",
			"domain", domain,
			"phase", ph.String(),
			"item_count", count)
	}

	// Unconditional spacing delay for the phase.
	if delay := l.delayFor(ph); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// One token from the phase bucket; Wait sleeps until refill when empty.
	return state.buckets[ph-1].Wait(ctx)
}

// Reset drops all state for a domain. Admin operation.
func (l *Limiter) Reset(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.domains, domain)
}

// advance increments the domain's item count and resolves its phase. The
// count is returned as a snapshot taken under the lock; itemCount itself
// must not be read once the lock is released.
func (l *Limiter) advance(domain string) (*domainState, phase, int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.domains[domain]
	if !ok {
		state = &domainState{
			phase: phaseBurst,
			buckets: [3]*rate.Limiter{
				newBucket(l.cfg.BurstPerSecond),
				newBucket(l.cfg.NormalPerSecond),
				newBucket(l.cfg.SustainedPerSecond),
			},
		}
		l.domains[domain] = state
	}

	state.itemCount++

	// T1 items travel in burst, the next T2 in normal, everything after in
	// sustained pacing.
	ph := phaseSustained
	switch {
	case state.itemCount <= int64(l.cfg.BurstThreshold):
		ph = phaseBurst
	case state.itemCount <= int64(l.cfg.BurstThreshold+l.cfg.SustainedThreshold):
		ph = phaseNormal
	}

	transitioned := ph != state.phase
	state.phase = ph
	return state, ph, state.itemCount, transitioned
}

func (l *Limiter) delayFor(ph phase) time.Duration {
	switch ph {
	case phaseBurst:
		return l.cfg.BurstDelay
	case phaseNormal:
		return l.cfg.NormalDelay
	default:
		return l.cfg.SustainedDelay
	}
}

// isPrivate reports whether the host is loopback, RFC1918, or carries the
// configured internal prefix.
func (l *Limiter) isPrivate(host string) bool {
	if host == "localhost" {
		return true
	}
	if l.cfg.InternalPrefix != "" && strings.HasPrefix(host, l.cfg.InternalPrefix) {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	return false
}

// parseDomain extracts the hostname from a URL; empty when unparseable.
func parseDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func newBucket(perSecond int) *rate.Limiter {
	if perSecond < 1 {
		perSecond = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}
