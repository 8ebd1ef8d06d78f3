package telemetry

import "math"

// Quality is the set of per-subsystem validity flags for one Sample (§3,
// §4.2). A subsystem whose fields are absent from the wire record (e.g. IMU
// fields on a Recovery packet) is vacuously valid.
type Quality struct {
	GPSValid     bool
	IMUValid     bool
	MagValid     bool
	BaroValid    bool
	TempValid    bool
	OverallValid bool
}

// Validator annotates parsed Samples with Quality flags against a
// ValidatorThresholds configuration.
type Validator struct {
	thresholds ValidatorThresholds
}

// NewValidator returns a Validator bound to the given thresholds.
func NewValidator(t ValidatorThresholds) *Validator {
	return &Validator{thresholds: t}
}

// Validate returns the Quality flags for s (§4.2).
func (v *Validator) Validate(s Sample) Quality {
	var q Quality
	q.GPSValid = v.validGPS(s)
	q.IMUValid = v.validIMU(s)
	q.MagValid = v.validMag(s)
	q.BaroValid = v.validBaro(s)
	q.TempValid = v.validTemp(s)
	q.OverallValid = q.GPSValid && q.IMUValid && q.MagValid && q.BaroValid && q.TempValid
	return q
}

func (v *Validator) validGPS(s Sample) bool {
	if !isFinite(s.LatDeg) || !isFinite(s.LonDeg) {
		return false
	}
	// No-fix sentinel: both components within 1e-5 deg of (0,0).
	if math.Abs(s.LatDeg) < 1e-5 && math.Abs(s.LonDeg) < 1e-5 {
		return false
	}
	if s.LatDeg < -90 || s.LatDeg > 90 {
		return false
	}
	if s.LonDeg < -180 || s.LonDeg > 180 {
		return false
	}
	return s.Sats >= 4
}

func (v *Validator) validIMU(s Sample) bool {
	if s.Mode != Armed {
		return true // subsystem absent: vacuously valid.
	}
	accelMax := v.thresholds.AccelMaxG * g0
	for _, a := range s.AccelMS2 {
		if math.Abs(a) > accelMax {
			return false
		}
	}
	for _, g := range s.GyroDPS {
		if math.Abs(g) > v.thresholds.GyroMaxDPS {
			return false
		}
	}
	return true
}

func (v *Validator) validMag(s Sample) bool {
	if s.Mode != Armed {
		return true
	}
	if s.MagUT[0] == 0 && s.MagUT[1] == 0 && s.MagUT[2] == 0 {
		return false
	}
	mag := s.MagMagUT
	return mag >= v.thresholds.MagMinUT && mag <= v.thresholds.MagMaxUT
}

func (v *Validator) validBaro(s Sample) bool {
	return s.AltitudeM >= v.thresholds.AltitudeMinM && s.AltitudeM <= v.thresholds.AltitudeMaxM
}

func (v *Validator) validTemp(s Sample) bool {
	t := float64(s.TempC)
	return t >= v.thresholds.TempMinC && t <= v.thresholds.TempMaxC
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
