package telemetry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 1 / deg2rad
	g0      = 9.81 // m/s^2, matches the scale table in spec.md §4.1
)

// norm3 returns the Euclidean norm of a 3-vector.
func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// unit3 returns the unit vector of a, or the zero vector if a is zero.
func unit3(a [3]float64) [3]float64 {
	n := norm3(a)
	if floats.EqualWithinAbs(n, 0, 1e-12) {
		return [3]float64{}
	}
	return [3]float64{a[0] / n, a[1] / n, a[2] / n}
}

// cross3 returns a x b.
func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// sign returns the sign of v, treating zero as positive (matches the
// teacher's math.go convention so downstream comparisons never divide by
// zero).
func sign(v float64) float64 {
	if floats.EqualWithinAbs(v, 0, 1e-12) {
		return 1
	}
	return v / math.Abs(v)
}

// denseIdentity returns an n x n identity matrix, the gonum.org/v1/gonum/mat
// equivalent of the teacher's DenseIdentity helper (math.go), which used the
// legacy github.com/gonum/matrix/mat64.
func denseIdentity(n int) *mat.Dense {
	return scaledDenseIdentity(n, 1)
}

// scaledDenseIdentity returns s*I, n x n.
func scaledDenseIdentity(n int, s float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, s)
	}
	return d
}

// symmetrize returns (m + mT) / 2, used after every covariance propagation
// step per spec.md §4.3 ("After predict, symmetrize").
func symmetrize(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Add(m, m.T())
	out.Scale(0.5, out)
	return out
}
