// Package proj converts between the ETRS89-LAEA Europe grid (EPSG:3035),
// which EGMS L3 products use for easting/northing, and WGS84 latitude/
// longitude (EPSG:4326) for geocoding and map display.
//
// The implementation is the ellipsoidal Lambert azimuthal equal-area
// projection from Snyder, "Map Projections: A Working Manual" (USGS PP 1395),
// with the EPSG:3035 parameters: GRS80 ellipsoid, projection centre 52N 10E,
// false easting 4321000 m, false northing 3210000 m.
package proj

import (
	"fmt"
	"math"
)

const (
	// GRS80 ellipsoid.
	semiMajor  = 6378137.0
	flattening = 1.0 / 298.257222101

	// EPSG:3035 projection parameters.
	centerLatDeg  = 52.0
	centerLonDeg  = 10.0
	falseEasting  = 4321000.0
	falseNorthing = 3210000.0
)

var (
	e2 = flattening * (2 - flattening) // first eccentricity squared
	e4 = e2 * e2
	e6 = e4 * e2
	ec = math.Sqrt(e2)

	qPole = authalicQ(math.Pi / 2)
	rq    = semiMajor * math.Sqrt(qPole/2) // authalic sphere radius

	lat0  = centerLatDeg * math.Pi / 180
	lon0  = centerLonDeg * math.Pi / 180
	beta0 = math.Asin(authalicQ(lat0) / qPole)

	// D rescales between the ellipsoid and the authalic sphere at the
	// projection centre (Snyder 24-20).
	dScale = semiMajor * math.Cos(lat0) /
		(math.Sqrt(1-e2*math.Sin(lat0)*math.Sin(lat0)) * rq * math.Cos(beta0))
)

// authalicQ is Snyder's q function (3-12): the equal-area auxiliary for a
// geodetic latitude in radians.
func authalicQ(lat float64) float64 {
	sin := math.Sin(lat)
	return (1 - e2) * (sin/(1-e2*sin*sin) -
		(1/(2*ec))*math.Log((1-ec*sin)/(1+ec*sin)))
}

// ToWGS84 converts EPSG:3035 easting/northing in metres to WGS84
// latitude/longitude in degrees.
func ToWGS84(easting, northing float64) (lat, lon float64, err error) {
	x := easting - falseEasting
	y := northing - falseNorthing

	rho := math.Hypot(x/dScale, dScale*y)
	if rho == 0 {
		return centerLatDeg, centerLonDeg, nil
	}
	if rho > 2*rq {
		return 0, 0, fmt.Errorf("coordinates (%g, %g) outside projection domain", easting, northing)
	}

	ce := 2 * math.Asin(rho/(2*rq))
	sinCe, cosCe := math.Sin(ce), math.Cos(ce)

	beta := math.Asin(cosCe*math.Sin(beta0) + dScale*y*sinCe*math.Cos(beta0)/rho)
	lonRad := lon0 + math.Atan2(x*sinCe,
		dScale*rho*math.Cos(beta0)*cosCe-dScale*dScale*y*math.Sin(beta0)*sinCe)

	// Authalic to geodetic latitude series (Snyder 3-18).
	latRad := beta +
		(e2/3+31*e4/180+517*e6/5040)*math.Sin(2*beta) +
		(23*e4/360+251*e6/3780)*math.Sin(4*beta) +
		(761*e6/45360)*math.Sin(6*beta)

	return latRad * 180 / math.Pi, lonRad * 180 / math.Pi, nil
}

// FromWGS84 converts WGS84 latitude/longitude in degrees to EPSG:3035
// easting/northing in metres.
func FromWGS84(lat, lon float64) (easting, northing float64, err error) {
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude %g out of range", lat)
	}
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180

	beta := math.Asin(authalicQ(latRad) / qPole)
	dLon := lonRad - lon0

	denom := 1 + math.Sin(beta0)*math.Sin(beta) +
		math.Cos(beta0)*math.Cos(beta)*math.Cos(dLon)
	if denom <= 0 {
		return 0, 0, fmt.Errorf("point (%g, %g) is antipodal to the projection centre", lat, lon)
	}
	b := rq * math.Sqrt(2/denom)

	easting = falseEasting + b*dScale*math.Cos(beta)*math.Sin(dLon)
	northing = falseNorthing + (b/dScale)*
		(math.Cos(beta0)*math.Sin(beta)-math.Sin(beta0)*math.Cos(beta)*math.Cos(dLon))
	return easting, northing, nil
}
