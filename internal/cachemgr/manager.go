// Package cachemgr is the mediator between components that own evictable
// caches and the code that watches memory pressure. It owns no cache data.
package cachemgr

import (
	"runtime/metrics"
	"sync"

	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/config"
)

// CacheOwner is a component holding memoized state it can rebuild.
type CacheOwner interface {
	// GetUsageRatio reports the owner's fill level in [0, 1].
	GetUsageRatio() float64
	// Evict drops everything that can be recomputed.
	Evict()
}

// UnknownRatio is returned while tracking is paused.
const UnknownRatio = -1.0

// HeapReader returns the bytes of live heap.
type HeapReader func() uint64

// Manager is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	owners    []CacheOwner
	paused    int
	heapLimit uint64
	readHeap  HeapReader
}

type Option func(*Manager)

// WithHeapLimit sets the heap size treated as ratio 1.
func WithHeapLimit(bytes uint64) Option {
	return func(m *Manager) { m.heapLimit = bytes }
}

// WithHeapReader replaces the runtime heap probe, for tests.
func WithHeapReader(r HeapReader) Option {
	return func(m *Manager) { m.readHeap = r }
}

func New(opts ...Option) *Manager {
	m := &Manager{heapLimit: config.DefaultHeapLimitBytes, readHeap: runtimeHeap}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var heapSample = []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}

func runtimeHeap() uint64 {
	s := make([]metrics.Sample, len(heapSample))
	copy(s, heapSample)
	metrics.Read(s)
	if s[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s[0].Value.Uint64()
}

// RegisterCacheOwner adds an owner. Registering the same owner twice is an
// engine bug.
func (m *Manager) RegisterCacheOwner(o CacheOwner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.owners {
		if existing == o {
			assert.Fail("cache owner %T registered twice", o)
		}
	}
	m.owners = append(m.owners, o)
}

func (m *Manager) UnregisterCacheOwner(o CacheOwner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.owners {
		if existing == o {
			m.owners = append(m.owners[:i], m.owners[i+1:]...)
			return
		}
	}
}

// Owners returns the number of registered owners.
func (m *Manager) Owners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners)
}

// HeapUsage returns live heap bytes and the configured limit.
func (m *Manager) HeapUsage() (used, limit uint64) {
	return m.readHeap(), m.heapLimit
}

// GetGlobalUsageRatio is the larger of the heap ratio and every owner's own
// ratio, or UnknownRatio while tracking is paused.
func (m *Manager) GetGlobalUsageRatio() float64 {
	m.mu.Lock()
	owners := append([]CacheOwner(nil), m.owners...)
	paused := m.paused > 0
	m.mu.Unlock()
	if paused {
		return UnknownRatio
	}

	ratio := 0.0
	if m.heapLimit > 0 {
		ratio = float64(m.readHeap()) / float64(m.heapLimit)
	}
	for _, o := range owners {
		if r := o.GetUsageRatio(); r > ratio {
			ratio = r
		}
	}
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// PauseTracking suspends usage reporting until the returned release
// function is called. Pauses nest; release is idempotent.
func (m *Manager) PauseTracking() (release func()) {
	m.mu.Lock()
	m.paused++
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.paused--
			m.mu.Unlock()
		})
	}
}

// EvictAll asks every owner to evict.
func (m *Manager) EvictAll() {
	m.mu.Lock()
	owners := append([]CacheOwner(nil), m.owners...)
	m.mu.Unlock()
	for _, o := range owners {
		o.Evict()
	}
}
