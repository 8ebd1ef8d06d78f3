package telemetry

import "math"

// quat is an orientation quaternion in (w, x, y, z) order, matching the EKF
// state layout of §3.
type quat [4]float64

var identityQuat = quat{1, 0, 0, 0}

func quatMul(a, b quat) quat {
	return quat{
		a[0]*b[0] - a[1]*b[1] - a[2]*b[2] - a[3]*b[3],
		a[0]*b[1] + a[1]*b[0] + a[2]*b[3] - a[3]*b[2],
		a[0]*b[2] - a[1]*b[3] + a[2]*b[0] + a[3]*b[1],
		a[0]*b[3] + a[1]*b[2] - a[2]*b[1] + a[3]*b[0],
	}
}

func quatConj(q quat) quat {
	return quat{q[0], -q[1], -q[2], -q[3]}
}

func quatNorm(q quat) float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}

func quatNormalize(q quat) quat {
	n := quatNorm(q)
	if n == 0 {
		return identityQuat
	}
	return quat{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

// quatRotate applies q to v via the Hamilton sandwich product q*(0,v)*q^-1,
// matching the literal direction spec.md §4.3 specifies at each call site
// (step 3 rotates body->NED with q itself; step 4 rotates NED->body with
// q's conjugate) rather than a single fixed body/NED label.
func quatRotate(q quat, v [3]float64) [3]float64 {
	vq := quat{0, v[0], v[1], v[2]}
	r := quatMul(quatMul(q, vq), quatConj(q))
	return [3]float64{r[1], r[2], r[3]}
}

// quatIntegrate advances q by the body rate omega (rad/s) over dt seconds
// using the first-order kinematic formula of §4.3 ("q <- q + 1/2 q x [0,w] dt")
// and renormalizes.
func quatIntegrate(q quat, omega [3]float64, dt float64) quat {
	dq := quatMul(q, quat{0, omega[0], omega[1], omega[2]})
	next := quat{
		q[0] + 0.5*dq[0]*dt,
		q[1] + 0.5*dq[1]*dt,
		q[2] + 0.5*dq[2]*dt,
		q[3] + 0.5*dq[3]*dt,
	}
	return quatNormalize(next)
}

// quatToEulerZYX returns (roll, pitch, yaw) in radians from a body<-NED
// quaternion, standard Z-Y-X (yaw-pitch-roll) aerospace convention.
func quatToEulerZYX(q quat) (roll, pitch, yaw float64) {
	w, x, y, z := q[0], q[1], q[2], q[3]
	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	sp := 2 * (w*y - z*x)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return
}
