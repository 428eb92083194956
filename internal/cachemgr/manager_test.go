package cachemgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sableassert "github.com/funvibe/sable/internal/assert"
)

type fakeOwner struct {
	ratio   float64
	evicted int
}

func (f *fakeOwner) GetUsageRatio() float64 { return f.ratio }
func (f *fakeOwner) Evict()                 { f.evicted++; f.ratio = 0 }

func TestGlobalUsageRatio(t *testing.T) {
	heap := uint64(100)
	m := New(WithHeapLimit(1000), WithHeapReader(func() uint64 { return heap }))
	assert.InDelta(t, 0.1, m.GetGlobalUsageRatio(), 1e-9)

	a := &fakeOwner{ratio: 0.4}
	m.RegisterCacheOwner(a)
	assert.InDelta(t, 0.4, m.GetGlobalUsageRatio(), 1e-9)

	heap = 5000
	assert.Equal(t, 1.0, m.GetGlobalUsageRatio(), "ratio is clamped")

	used, limit := m.HeapUsage()
	assert.Equal(t, uint64(5000), used)
	assert.Equal(t, uint64(1000), limit)
}

func TestPauseTracking(t *testing.T) {
	m := New(WithHeapReader(func() uint64 { return 0 }))
	m.RegisterCacheOwner(&fakeOwner{ratio: 0.5})

	outer := m.PauseTracking()
	inner := m.PauseTracking()
	assert.Equal(t, UnknownRatio, m.GetGlobalUsageRatio())
	inner()
	inner()
	assert.Equal(t, UnknownRatio, m.GetGlobalUsageRatio(), "outer pause still held")
	outer()
	assert.InDelta(t, 0.5, m.GetGlobalUsageRatio(), 1e-9)
}

func TestEvictAllAndUnregister(t *testing.T) {
	m := New(WithHeapReader(func() uint64 { return 0 }))
	a, b := &fakeOwner{ratio: 0.9}, &fakeOwner{ratio: 0.2}
	m.RegisterCacheOwner(a)
	m.RegisterCacheOwner(b)
	require.Equal(t, 2, m.Owners())

	m.EvictAll()
	assert.Equal(t, 1, a.evicted)
	assert.Equal(t, 1, b.evicted)

	m.UnregisterCacheOwner(a)
	m.EvictAll()
	assert.Equal(t, 1, a.evicted)
	assert.Equal(t, 2, b.evicted)
	assert.Equal(t, 1, m.Owners())
}

func TestDoubleRegistrationIsFatal(t *testing.T) {
	m := New()
	a := &fakeOwner{}
	m.RegisterCacheOwner(a)
	defer func() {
		r := recover()
		_, ok := r.(*sableassert.InternalError)
		assert.True(t, ok, "expected internal error, got %v", r)
	}()
	m.RegisterCacheOwner(a)
	t.Fatal("second registration did not fail")
}

func TestRuntimeHeapProbe(t *testing.T) {
	assert.Greater(t, runtimeHeap(), uint64(0))
}
