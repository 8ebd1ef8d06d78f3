package telemetry

import (
	"math"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/mat"
)

// State vector layout (§3): 15 elements.
const (
	idxPosN = iota
	idxPosE
	idxPosD
	idxVelN
	idxVelE
	idxVelD
	idxQW
	idxQX
	idxQY
	idxQZ
	idxGyroBiasX
	idxGyroBiasY
	idxGyroBiasZ
	idxAccelZBias
	idxBaroBias
	stateDim
)

const healthEps = 1e-9

// State is the exposed EKF output (§4.3 "Exposed state").
type State struct {
	PositionNED      [3]float64
	VelocityNED      [3]float64
	Quaternion       [4]float64
	EulerAnglesDeg   [3]float64 // roll, pitch, yaw
	GyroBias         [3]float64
	AccelZBias       float64
	BaroBias         float64
	Altitude         float64
	Speed            float64
	VerticalVelocity float64
	CovarianceDiag   [stateDim]float64
}

// Health is the EKF's self-diagnostic report (§4.3).
type Health struct {
	StateFinite                bool
	PFinite                    bool
	CovarianceSymmetric        bool
	CovariancePositiveDefinite bool
	QuaternionNormalized       bool
	IsHealthy                  bool
}

// EKFStats is a lock-free snapshot of the filter's per-update-kind counters,
// matching spec.md §5's requirement that statistics "be read by external
// collaborators via snapshot ... lock-free or tolerate a stale read within
// one packet."
type EKFStats struct {
	ClockAnomalies      uint64
	SingularInnovations uint64
	InvalidMeasurements uint64
	Divergences         uint64
}

// EKF is the 15-state Extended Kalman Filter of §4.3. It is owned
// exclusively by one Pipeline (§5: "EKF ... state owned by the pipeline
// task and never shared") and is not safe for concurrent use.
type EKF struct {
	x *mat.VecDense // 15x1
	p *mat.Dense    // 15x15

	noise EKFNoise
	log   kitlog.Logger

	initialized bool
	needsReinit bool
	hasLastTS   bool
	lastTS      time.Time

	clockAnomalies      atomic.Uint64
	singularInnovations atomic.Uint64
	invalidMeasurements atomic.Uint64
	divergences         atomic.Uint64
}

// NewEKF returns an uninitialized filter; it self-initializes on the first
// call to Step.
func NewEKF(noise EKFNoise, logger kitlog.Logger) *EKF {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &EKF{noise: noise, log: logger}
}

// Stats returns a snapshot of the filter's update counters.
func (e *EKF) Stats() EKFStats {
	return EKFStats{
		ClockAnomalies:      e.clockAnomalies.Load(),
		SingularInnovations: e.singularInnovations.Load(),
		InvalidMeasurements: e.invalidMeasurements.Load(),
		Divergences:         e.divergences.Load(),
	}
}

func (e *EKF) initialize(s Sample, q Quality, ref ReferencePoint) {
	e.x = mat.NewVecDense(stateDim, nil)
	e.x.SetVec(idxQW, 1) // identity quaternion

	if q.GPSValid {
		ned := geodeticToNED(s.LatDeg, s.LonDeg, s.AltitudeM, ref)
		e.x.SetVec(idxPosN, ned[0])
		e.x.SetVec(idxPosE, ned[1])
		e.x.SetVec(idxPosD, ned[2])
	}

	e.p = mat.NewDense(stateDim, stateDim, nil)
	diag := []float64{
		e.noise.P0Pos, e.noise.P0Pos, e.noise.P0Pos,
		e.noise.P0Vel, e.noise.P0Vel, e.noise.P0Vel,
		e.noise.P0Quat, e.noise.P0Quat, e.noise.P0Quat, e.noise.P0Quat,
		e.noise.P0GyroBias, e.noise.P0GyroBias, e.noise.P0GyroBias,
		e.noise.P0AccelZ,
		e.noise.P0Baro,
	}
	for i, v := range diag {
		e.p.Set(i, i, v)
	}

	e.initialized = true
	e.needsReinit = false
	e.hasLastTS = false
}

func (e *EKF) quat() quat {
	return quat{e.x.AtVec(idxQW), e.x.AtVec(idxQX), e.x.AtVec(idxQY), e.x.AtVec(idxQZ)}
}

func (e *EKF) setQuat(q quat) {
	e.x.SetVec(idxQW, q[0])
	e.x.SetVec(idxQX, q[1])
	e.x.SetVec(idxQY, q[2])
	e.x.SetVec(idxQZ, q[3])
}

// computeDT derives the elapsed time since the last sample (§4.3
// "Timebase"), substituting 0.1s and bumping the clock-anomaly counter on a
// non-positive or excessive gap, or on the very first sample.
func (e *EKF) computeDT(ts time.Time) float64 {
	if !e.hasLastTS {
		e.hasLastTS = true
		e.lastTS = ts
		e.clockAnomalies.Add(1)
		e.log.Log("subsys", "ekf", "level", "warn", "msg", "first sample, substituting dt")
		return 0.1
	}
	dt := ts.Sub(e.lastTS).Seconds()
	e.lastTS = ts
	if dt <= 0 || dt > 1.0 {
		e.clockAnomalies.Add(1)
		e.log.Log("subsys", "ekf", "level", "warn", "msg", "clock anomaly, substituting dt", "dt", dt)
		return 0.1
	}
	return dt
}

// predict advances position and propagates covariance (§4.3 "Predict step").
func (e *EKF) predict(dt float64) {
	e.x.SetVec(idxPosN, e.x.AtVec(idxPosN)+e.x.AtVec(idxVelN)*dt)
	e.x.SetVec(idxPosE, e.x.AtVec(idxPosE)+e.x.AtVec(idxVelE)*dt)
	e.x.SetVec(idxPosD, e.x.AtVec(idxPosD)+e.x.AtVec(idxVelD)*dt)

	f := denseIdentity(stateDim)
	f.Set(idxPosN, idxVelN, dt)
	f.Set(idxPosE, idxVelE, dt)
	f.Set(idxPosD, idxVelD, dt)

	qdiag := []float64{
		e.noise.QPos, e.noise.QPos, e.noise.QPos,
		e.noise.QVel, e.noise.QVel, e.noise.QVel,
		e.noise.QQuat, e.noise.QQuat, e.noise.QQuat, e.noise.QQuat,
		e.noise.QGyroBias, e.noise.QGyroBias, e.noise.QGyroBias,
		e.noise.QAccelZ,
		e.noise.QBaro,
	}

	var fp, fpft mat.Dense
	fp.Mul(f, e.p)
	fpft.Mul(&fp, f.T())
	for i, v := range qdiag {
		fpft.Set(i, i, fpft.At(i, i)+v*dt)
	}
	e.p = symmetrize(&fpft)
}

// imuUpdate performs the orientation/velocity propagation and the
// accelerometer measurement update of §4.3 "IMU update".
func (e *EKF) imuUpdate(s Sample, dt float64) {
	gyroBias := [3]float64{e.x.AtVec(idxGyroBiasX), e.x.AtVec(idxGyroBiasY), e.x.AtVec(idxGyroBiasZ)}
	omega := [3]float64{s.GyroDPS[0]*deg2rad - gyroBias[0], s.GyroDPS[1]*deg2rad - gyroBias[1], s.GyroDPS[2]*deg2rad - gyroBias[2]}

	q := quatIntegrate(e.quat(), omega, dt)
	e.setQuat(q)

	accelZBias := e.x.AtVec(idxAccelZBias)
	corrected := [3]float64{s.AccelMS2[0], s.AccelMS2[1], s.AccelMS2[2] - accelZBias}
	aNED := quatRotate(q, corrected)
	aTrue := [3]float64{aNED[0], aNED[1], aNED[2] - g0}
	e.x.SetVec(idxVelN, e.x.AtVec(idxVelN)+aTrue[0]*dt)
	e.x.SetVec(idxVelE, e.x.AtVec(idxVelE)+aTrue[1]*dt)
	e.x.SetVec(idxVelD, e.x.AtVec(idxVelD)+aTrue[2]*dt)

	gBody := quatRotate(quatConj(q), [3]float64{0, 0, g0})
	gBodyBiased := [3]float64{gBody[0], gBody[1], gBody[2] + accelZBias}
	y := mat.NewVecDense(3, []float64{
		s.AccelMS2[0] - gBodyBiased[0],
		s.AccelMS2[1] - gBodyBiased[1],
		s.AccelMS2[2] - gBodyBiased[2],
	})

	h := mat.NewDense(3, stateDim, nil)
	h.Set(2, idxAccelZBias, 1)
	r := scaledDenseIdentity(3, e.noise.RAccel)

	if !e.updateWith(h, y, r) {
		e.singularInnovations.Add(1)
		e.log.Log("subsys", "ekf", "level", "warn", "msg", "singular innovation", "update", "accel")
	}
	e.setQuat(quatNormalize(e.quat()))
}

// baroUpdate applies the scalar barometer measurement of §4.3.
func (e *EKF) baroUpdate(s Sample) {
	h := mat.NewDense(1, stateDim, nil)
	h.Set(0, idxPosD, -1)
	h.Set(0, idxBaroBias, 1)
	predicted := -e.x.AtVec(idxPosD) + e.x.AtVec(idxBaroBias)
	y := mat.NewVecDense(1, []float64{s.AltitudeM - predicted})
	r := mat.NewDense(1, 1, []float64{e.noise.RBaro})

	if !e.updateWith(h, y, r) {
		e.singularInnovations.Add(1)
		e.log.Log("subsys", "ekf", "level", "warn", "msg", "singular innovation", "update", "baro")
	}
}

// gpsUpdate applies the direct NED position measurement of §4.3.
func (e *EKF) gpsUpdate(s Sample, ref ReferencePoint) {
	if s.LatDeg < -90 || s.LatDeg > 90 || s.LonDeg < -180 || s.LonDeg > 180 {
		e.invalidMeasurements.Add(1)
		e.log.Log("subsys", "ekf", "level", "warn", "msg", "gps coordinates out of range")
		return
	}
	ned := geodeticToNED(s.LatDeg, s.LonDeg, s.AltitudeM, ref)
	h := mat.NewDense(3, stateDim, nil)
	h.Set(0, idxPosN, 1)
	h.Set(1, idxPosE, 1)
	h.Set(2, idxPosD, 1)
	y := mat.NewVecDense(3, []float64{
		ned[0] - e.x.AtVec(idxPosN),
		ned[1] - e.x.AtVec(idxPosE),
		ned[2] - e.x.AtVec(idxPosD),
	})
	r := scaledDenseIdentity(3, e.noise.RGPS)

	if !e.updateWith(h, y, r) {
		e.singularInnovations.Add(1)
		e.log.Log("subsys", "ekf", "level", "warn", "msg", "singular innovation", "update", "gps")
	}
}

// magUpdate applies the magnetometer measurement of §4.3. The Jacobian's
// quaternion block is estimated by central finite differences, per the
// design note (§9) allowing a full analytic Jacobian to be traded for
// implementation simplicity as long as filter health is preserved; every
// other column is exactly zero (the measurement model has no other state
// dependence).
func (e *EKF) magUpdate(s Sample, noise EKFNoise) {
	q := e.quat()
	refField := noise.MagReferenceNED
	expected := quatRotate(quatConj(q), refField)
	y := mat.NewVecDense(3, []float64{
		s.MagUT[0] - expected[0],
		s.MagUT[1] - expected[1],
		s.MagUT[2] - expected[2],
	})

	const eps = 1e-4
	h := mat.NewDense(3, stateDim, nil)
	for k := 0; k < 4; k++ {
		plus := q
		minus := q
		plus[k] += eps
		minus[k] -= eps
		plus = quatNormalize(plus)
		minus = quatNormalize(minus)
		fp := quatRotate(quatConj(plus), refField)
		fm := quatRotate(quatConj(minus), refField)
		for row := 0; row < 3; row++ {
			h.Set(row, idxQW+k, (fp[row]-fm[row])/(2*eps))
		}
	}
	r := scaledDenseIdentity(3, e.noise.RMag)

	if !e.updateWith(h, y, r) {
		e.singularInnovations.Add(1)
		e.log.Log("subsys", "ekf", "level", "warn", "msg", "singular innovation", "update", "mag")
	}
	e.setQuat(quatNormalize(e.quat()))
}

// updateWith runs one Kalman measurement update given H, innovation y and
// measurement noise R. Returns false (and leaves state untouched) if the
// innovation covariance is singular (§4.3/§7 SingularInnovation).
func (e *EKF) updateWith(h *mat.Dense, y *mat.VecDense, r mat.Matrix) bool {
	var ph, s, sInv mat.Dense
	ph.Mul(e.p, h.T())
	s.Mul(h, &ph)
	s.Add(&s, r)

	if err := sInv.Inverse(&s); err != nil {
		return false
	}

	var k mat.Dense
	k.Mul(&ph, &sInv)

	var ky mat.Dense
	ky.Mul(&k, y)
	for i := 0; i < stateDim; i++ {
		e.x.SetVec(i, e.x.AtVec(i)+ky.At(i, 0))
	}

	var kh, imkh mat.Dense
	kh.Mul(&k, h)
	imkh.Sub(denseIdentity(stateDim), &kh)
	var newP mat.Dense
	newP.Mul(&imkh, e.p)
	e.p = symmetrize(&newP)
	return true
}

// Step advances the filter by one packet and returns the exposed state and
// health report (§4.3). It (re)initializes automatically on the first call
// and whenever a prior step marked the filter divergent.
func (e *EKF) Step(s Sample, q Quality, ref ReferencePoint) (State, Health) {
	if !e.initialized || e.needsReinit {
		e.initialize(s, q, ref)
	}

	dt := e.computeDT(s.Timestamp)
	e.predict(dt)

	if s.Mode == Armed {
		e.imuUpdate(s, dt)
	}
	e.baroUpdate(s)
	if q.GPSValid {
		e.gpsUpdate(s, ref)
	}
	if s.Mode == Armed && q.MagValid {
		e.magUpdate(s, e.noise)
	}

	health := e.health()
	if !health.StateFinite || !health.PFinite {
		e.divergences.Add(1)
		e.needsReinit = true
		e.log.Log("subsys", "ekf", "level", "error", "msg", "filter divergence, reinitializing next sample")
	}

	return e.exposedState(), health
}

func (e *EKF) health() Health {
	var h Health
	h.StateFinite = true
	for i := 0; i < stateDim; i++ {
		if !isFinite(e.x.AtVec(i)) {
			h.StateFinite = false
			break
		}
	}
	h.PFinite = true
	for i := 0; i < stateDim && h.PFinite; i++ {
		for j := 0; j < stateDim; j++ {
			if !isFinite(e.p.At(i, j)) {
				h.PFinite = false
				break
			}
		}
	}

	if h.PFinite {
		var diff mat.Dense
		diff.Sub(e.p, e.p.T())
		h.CovarianceSymmetric = frobeniusNorm(&diff) < 1e-6

		symP := symmetricView(e.p)
		var eig mat.EigenSym
		ok := eig.Factorize(symP, false)
		h.CovariancePositiveDefinite = ok
		if ok {
			for _, v := range eig.Values(nil) {
				if v <= healthEps {
					h.CovariancePositiveDefinite = false
					break
				}
			}
		}
	}

	h.QuaternionNormalized = math.Abs(quatNorm(e.quat())-1) < 0.01
	h.IsHealthy = h.StateFinite && h.PFinite && h.CovarianceSymmetric && h.CovariancePositiveDefinite && h.QuaternionNormalized
	return h
}

func frobeniusNorm(m *mat.Dense) float64 {
	r, c := m.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

func symmetricView(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	return sym
}

func (e *EKF) exposedState() State {
	q := e.quat()
	roll, pitch, yaw := quatToEulerZYX(q)
	vel := [3]float64{e.x.AtVec(idxVelN), e.x.AtVec(idxVelE), e.x.AtVec(idxVelD)}

	var s State
	s.PositionNED = [3]float64{e.x.AtVec(idxPosN), e.x.AtVec(idxPosE), e.x.AtVec(idxPosD)}
	s.VelocityNED = vel
	s.Quaternion = q
	s.EulerAnglesDeg = [3]float64{roll * rad2deg, pitch * rad2deg, yaw * rad2deg}
	s.GyroBias = [3]float64{e.x.AtVec(idxGyroBiasX), e.x.AtVec(idxGyroBiasY), e.x.AtVec(idxGyroBiasZ)}
	s.AccelZBias = e.x.AtVec(idxAccelZBias)
	s.BaroBias = e.x.AtVec(idxBaroBias)
	s.Altitude = -s.PositionNED[2]
	s.Speed = norm3(vel)
	s.VerticalVelocity = -vel[2]
	for i := 0; i < stateDim; i++ {
		s.CovarianceDiag[i] = e.p.At(i, i)
	}
	return s
}
