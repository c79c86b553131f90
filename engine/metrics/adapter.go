package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// cachedView is the snapshot held behind the adapter's atomic pointer.
type cachedView struct {
	failureRate       float64
	recentFailureRate float64
	totalExecutions   int64
	expiresAtNanos    int64
}

// ProviderAdapter wraps a Collector behind a short-TTL cache so the
// adaptive controller's hot-path reads never recompute a fresh snapshot on
// every call. Refresh is race-free: readers past expiry serialize on a
// mutex, and only the first to re-check the expiry publishes a new view;
// the others return that view.
type ProviderAdapter struct {
	collector *Collector
	ttl       time.Duration
	view      atomic.Pointer[cachedView]
	refreshMu sync.Mutex
}

// NewProviderAdapter builds an adapter with the given cache TTL. A ttl of 0
// falls back to 100ms, the default used throughout the engine.
func NewProviderAdapter(collector *Collector, ttl time.Duration) *ProviderAdapter {
	if ttl <= 0 {
		ttl = 100 * time.Millisecond
	}
	a := &ProviderAdapter{collector: collector, ttl: ttl}
	a.view.Store(&cachedView{}) // expiresAtNanos=0 forces first read to refresh
	return a
}

func (a *ProviderAdapter) current() *cachedView {
	now := time.Now().UnixNano()
	v := a.view.Load()
	if now < v.expiresAtNanos {
		return v
	}
	return a.refresh(now)
}

// refresh uses double-checked acquisition: only one goroutine recomputes
// per expiry window, via a narrow mutex, while others either observe the
// stale-but-valid view or the freshly published one. Never a torn read
// because cachedView is replaced wholesale via an atomic pointer store.
func (a *ProviderAdapter) refresh(now int64) *cachedView {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if v := a.view.Load(); now < v.expiresAtNanos {
		return v
	}

	fresh := &cachedView{
		failureRate:       a.collector.FailureRate(),
		recentFailureRate: a.collector.RecentFailureRate(),
		totalExecutions:   a.collector.TotalExecutions(),
		expiresAtNanos:    now + a.ttl.Nanoseconds(),
	}
	a.view.Store(fresh)
	return fresh
}

// FailureRate implements Provider.
func (a *ProviderAdapter) FailureRate() float64 { return a.current().failureRate }

// RecentFailureRate implements Provider.
func (a *ProviderAdapter) RecentFailureRate() float64 { return a.current().recentFailureRate }

// TotalExecutions implements Provider.
func (a *ProviderAdapter) TotalExecutions() int64 { return a.current().totalExecutions }
