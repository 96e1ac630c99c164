package models

import "time"

// Point is a single EGMS L3 measurement point as parsed from a tile CSV.
// Easting/Northing are ETRS89-LAEA (EPSG:3035) metres; Lat/Lon are the
// WGS84 conversion computed at parse time.
type Point struct {
	PID          string
	DatasetID    string
	Easting      float64
	Northing     float64
	Latitude     float64
	Longitude    float64
	MeanVelocity float64 // mm/year, 0 when the column is absent
}

// LocationInfo is the human-readable place resolved for a point.
type LocationInfo struct {
	Name   string  // e.g. "Patna, India" or "Berlin, Germany"
	Admin  string  // administrative region or country
	Lat    float64 // location reference coordinate, not the point's
	Lon    float64
	Source string // "nominatim" or "gazetteer"
}

// GeoSource values recorded on enriched points.
const (
	GeoSourceNominatim = "nominatim"
	GeoSourceGazetteer = "gazetteer"
	GeoSourceUnmatched = "unmatched"
)

// EnrichedPoint joins a Point with at most one LocationInfo. Unmatched
// points keep the zero LocationInfo and GeoSource "unmatched".
type EnrichedPoint struct {
	Point
	Location   LocationInfo
	GeoSource  string
	EnrichedAt time.Time
}

// Matched reports whether the point resolved to a location.
func (p *EnrichedPoint) Matched() bool {
	return p.GeoSource != GeoSourceUnmatched && p.GeoSource != ""
}
