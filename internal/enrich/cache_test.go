package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/observability"
)

type countingGeocoder struct {
	calls  int
	result Result
	err    error
}

func (g *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (Result, error) {
	g.calls++
	return g.result, g.err
}

func TestCachedGeocoderServesRepeatsFromCache(t *testing.T) {
	inner := &countingGeocoder{result: Result{Name: "Bologna, Italy", Source: models.GeoSourceNominatim}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	for i := 0; i < 3; i++ {
		result, err := cached.ReverseGeocode(context.Background(), 44.4949, 11.3426)
		require.NoError(t, err)
		assert.Equal(t, "Bologna, Italy", result.Name)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoderDistinguishesNearbyCoordinates(t *testing.T) {
	inner := &countingGeocoder{result: Result{Name: "Bologna, Italy"}}
	cached := NewCachedGeocoder(inner, 10, nil)

	_, err := cached.ReverseGeocode(context.Background(), 44.49490, 11.34260)
	require.NoError(t, err)
	// Differs past the fifth decimal, same cache key.
	_, err = cached.ReverseGeocode(context.Background(), 44.494901, 11.342601)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	_, err = cached.ReverseGeocode(context.Background(), 44.4950, 11.3426)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoderDoesNotCacheMisses(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, nil)

	for i := 0; i < 2; i++ {
		result, err := cached.ReverseGeocode(context.Background(), 52.0, 10.0)
		require.NoError(t, err)
		assert.Empty(t, result.Name)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoderPropagatesErrors(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("timeout")}
	cached := NewCachedGeocoder(inner, 10, nil)

	_, err := cached.ReverseGeocode(context.Background(), 52.0, 10.0)
	require.Error(t, err)

	_, err = cached.ReverseGeocode(context.Background(), 52.0, 10.0)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	cache := newLRUCache(2)
	cache.put("a", Result{Name: "A"})
	cache.put("b", Result{Name: "B"})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.get("a")
	require.True(t, ok)

	cache.put("c", Result{Name: "C"})

	_, ok = cache.get("b")
	assert.False(t, ok)
	_, ok = cache.get("a")
	assert.True(t, ok)
	_, ok = cache.get("c")
	assert.True(t, ok)
}

func TestLRUCacheUpdateExisting(t *testing.T) {
	cache := newLRUCache(2)
	cache.put("a", Result{Name: "old"})
	cache.put("a", Result{Name: "new"})

	result, ok := cache.get("a")
	require.True(t, ok)
	assert.Equal(t, "new", result.Name)
}
