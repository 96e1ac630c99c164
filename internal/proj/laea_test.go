package proj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionCentre(t *testing.T) {
	lat, lon, err := ToWGS84(4321000, 3210000)
	require.NoError(t, err)
	assert.InDelta(t, 52.0, lat, 1e-9)
	assert.InDelta(t, 10.0, lon, 1e-9)

	e, n, err := FromWGS84(52.0, 10.0)
	require.NoError(t, err)
	assert.InDelta(t, 4321000, e, 1e-4)
	assert.InDelta(t, 3210000, n, 1e-4)
}

func TestRoundTripAcrossEurope(t *testing.T) {
	points := []struct {
		name     string
		lat, lon float64
	}{
		{"lisbon", 38.7223, -9.1393},
		{"berlin", 52.5200, 13.4050},
		{"athens", 37.9838, 23.7275},
		{"reykjavik", 64.1466, -21.9426},
		{"helsinki", 60.1699, 24.9384},
		{"valletta", 35.8989, 14.5146},
	}

	for _, p := range points {
		t.Run(p.name, func(t *testing.T) {
			e, n, err := FromWGS84(p.lat, p.lon)
			require.NoError(t, err)

			lat, lon, err := ToWGS84(e, n)
			require.NoError(t, err)
			assert.InDelta(t, p.lat, lat, 1e-6)
			assert.InDelta(t, p.lon, lon, 1e-6)
		})
	}
}

func TestToWGS84Direction(t *testing.T) {
	// East of the centre meridian projects east of the false easting, and
	// vice versa; same for north/south.
	lat, lon, err := ToWGS84(4321000+200000, 3210000)
	require.NoError(t, err)
	assert.Greater(t, lon, 10.0)
	assert.InDelta(t, 52.0, lat, 0.1)

	lat, _, err = ToWGS84(4321000, 3210000-300000)
	require.NoError(t, err)
	assert.Less(t, lat, 52.0)
}

func TestToWGS84OutsideDomain(t *testing.T) {
	_, _, err := ToWGS84(1e9, 1e9)
	assert.Error(t, err)
}

func TestTileCornerLandsInEurope(t *testing.T) {
	// Tile E32N31 spans eastings 3200-3300 km, northings 3100-3200 km.
	lat, lon, err := ToWGS84(3250000, 3150000)
	require.NoError(t, err)
	assert.Greater(t, lat, 35.0)
	assert.Less(t, lat, 60.0)
	assert.Greater(t, lon, -15.0)
	assert.Less(t, lon, 10.0)
}

func TestHaversineKm(t *testing.T) {
	// Paris to London.
	d := HaversineKm(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 343.5, d, 1.5)

	// Zero distance.
	assert.InDelta(t, 0, HaversineKm(52, 10, 52, 10), 1e-9)

	// Symmetry.
	assert.InDelta(t,
		HaversineKm(38.7, -9.1, 60.2, 24.9),
		HaversineKm(60.2, 24.9, 38.7, -9.1),
		1e-9)
}
