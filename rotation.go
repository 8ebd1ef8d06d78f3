package telemetry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// R1 is the single-axis rotation matrix about the 1st (X) axis.
func R1(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

// R2 is the single-axis rotation matrix about the 2nd (Y) axis.
func R2(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, 0, -s, 0, 1, 0, s, 0, c})
}

// R3 is the single-axis rotation matrix about the 3rd (Z) axis.
func R3(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// mxv33 multiplies a 3x3 matrix by a 3-vector. No dimension check: callers
// only ever pass 3x3 rotation matrices (R1/R2/R3 above, or
// ecefToNEDRotation).
func mxv33(m *mat.Dense, v [3]float64) [3]float64 {
	vVec := mat.NewVecDense(3, v[:])
	var rVec mat.VecDense
	rVec.MulVec(m, vVec)
	return [3]float64{rVec.AtVec(0), rVec.AtVec(1), rVec.AtVec(2)}
}
