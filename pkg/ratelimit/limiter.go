package ratelimit

import (
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const sweepInterval = 5 * time.Minute

// Decision is the outcome of a rate-limit check. ResetTime is when the
// caller's window ends and requests are admitted again.
type Decision struct {
	Allowed   bool
	Count     int
	ResetTime time.Time
}

// Limiter counts requests per identifier inside a fixed window. The backing
// store is swappable without touching call sites: the in-memory
// implementation limits per process instance (best-effort abuse mitigation),
// the Redis one counts across instances.
type Limiter interface {
	Check(key string, limit int, window time.Duration) Decision
	Close()
}

type memoryLimiter struct {
	mu      sync.Mutex
	entries map[string]windowState
	stopCh  chan struct{}
	once    sync.Once
}

type windowState struct {
	count     int
	windowEnd time.Time
}

// NewMemory returns a process-local limiter. A background sweep drops
// expired windows so the map does not grow with abandoned identifiers.
func NewMemory() Limiter {
	l := &memoryLimiter{
		entries: make(map[string]windowState),
		stopCh:  make(chan struct{}),
	}
	go wait.JitterUntil(l.sweep, sweepInterval, 0.01, true, l.stopCh)
	return l
}

func (l *memoryLimiter) Check(key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.entries[key]
	if !ok || now.After(state.windowEnd) {
		state = windowState{count: 1, windowEnd: now.Add(window)}
		l.entries[key] = state
		return Decision{Allowed: true, Count: 1, ResetTime: state.windowEnd}
	}

	if state.count >= limit {
		return Decision{Allowed: false, Count: state.count, ResetTime: state.windowEnd}
	}

	state.count++
	l.entries[key] = state
	return Decision{Allowed: true, Count: state.count, ResetTime: state.windowEnd}
}

func (l *memoryLimiter) sweep() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, state := range l.entries {
		if now.After(state.windowEnd) {
			delete(l.entries, key)
		}
	}
}

func (l *memoryLimiter) Close() {
	l.once.Do(func() {
		close(l.stopCh)
	})
}
