package proj

import "math"

// earthRadiusKm is the WGS84 mean radius used for haversine distances.
const earthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance in kilometres between two
// WGS84 points. Used by the offline gazetteer nearest-match join.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	phi1 := lat1 * rad
	phi2 := lat2 * rad
	dPhi := (lat2 - lat1) * rad
	dLambda := (lon2 - lon1) * rad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
