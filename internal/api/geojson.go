package api

import (
	"github.com/abibardhan/EGMS-L3/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(points []models.EnrichedPoint) FeatureCollection {
	features := make([]Feature, 0, len(points))

	for _, p := range points {
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{p.Longitude, p.Latitude},
			},
			Properties: map[string]any{
				"pid":           p.PID,
				"dataset_id":    p.DatasetID,
				"easting":       p.Easting,
				"northing":      p.Northing,
				"mean_velocity": p.MeanVelocity,
				"location":      p.Location.Name,
				"admin":         p.Location.Admin,
				"geo_source":    p.GeoSource,
				"matched":       p.Matched(),
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
