package telemetry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// WGS-84 ellipsoid constants, used by geodeticToECEF.
const (
	wgs84A  = 6378137.0         // semi-major axis, m
	wgs84F  = 1 / 298.257223563 // flattening
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// geodeticToECEF converts a latitude/longitude (degrees) and altitude (m)
// above the WGS-84 ellipsoid to Earth-Centered Earth-Fixed Cartesian
// coordinates (m). Grounded on the teacher's station.go, which builds a
// ground station's ECEF position from geodetic coordinates the same way
// (GEO2ECEF), though that function's body was not part of this retrieval;
// this is the standard WGS-84 formula it and the spec's §4.3 GPS update
// both call for.
func geodeticToECEF(latDeg, lonDeg, altM float64) [3]float64 {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad
	sLat, cLat := math.Sincos(lat)
	sLon, cLon := math.Sincos(lon)
	n := wgs84A / math.Sqrt(1-wgs84E2*sLat*sLat)
	return [3]float64{
		(n + altM) * cLat * cLon,
		(n + altM) * cLat * sLon,
		(n*(1-wgs84E2) + altM) * sLat,
	}
}

// ecefToNEDRotation returns the rotation matrix that takes an ECEF vector
// difference into the local North-East-Down frame anchored at the given
// geodetic reference point, matching station.go's pattern of composing the
// site's own rotation from its lat/lon (there: the SEZ frame via R2/R3; here:
// the NED frame via the standard ECEF->NED direction-cosine matrix).
func ecefToNEDRotation(refLatDeg, refLonDeg float64) *mat.Dense {
	lat := refLatDeg * deg2rad
	lon := refLonDeg * deg2rad
	sLat, cLat := math.Sincos(lat)
	sLon, cLon := math.Sincos(lon)
	return mat.NewDense(3, 3, []float64{
		-sLat * cLon, -sLat * sLon, cLat,
		-sLon, cLon, 0,
		-cLat * cLon, -cLat * sLon, -sLat,
	})
}

// geodeticToNED converts a geodetic position to local NED coordinates
// relative to ref, per spec.md §4.3's GPS update: "Convert geodetic
// lat/lon/alt to local NED relative to a configured reference point using
// the WGS-84 geodetic->ECEF transform followed by the ECEF->NED rotation
// matrix at the reference."
func geodeticToNED(latDeg, lonDeg, altM float64, ref ReferencePoint) [3]float64 {
	ecef := geodeticToECEF(latDeg, lonDeg, altM)
	refECEF := geodeticToECEF(ref.LatDeg, ref.LonDeg, ref.AltM)
	delta := [3]float64{ecef[0] - refECEF[0], ecef[1] - refECEF[1], ecef[2] - refECEF[2]}
	return mxv33(ecefToNEDRotation(ref.LatDeg, ref.LonDeg), delta)
}
