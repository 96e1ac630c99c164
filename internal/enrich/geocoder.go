package enrich

import "context"

// Result is a resolved place for a coordinate. A zero Result with nil
// error means the provider had no answer within its limits; callers treat
// the point as unmatched rather than failing the run.
type Result struct {
	Name   string // human-readable place, e.g. "Bologna, Italy"
	Admin  string // administrative region or country
	Lat    float64
	Lon    float64
	Source string // models.GeoSourceNominatim or models.GeoSourceGazetteer
}

// Geocoder resolves WGS84 coordinates to place details.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Result, error)
}
