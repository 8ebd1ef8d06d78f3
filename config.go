package telemetry

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ReferencePoint is the geodetic origin of the local NED frame used by the
// EKF's GPS update. It must be configured once per launch site; there is no
// built-in default site (spec.md §9(b): the reference point is a single
// configuration entry, not a hard-coded constant).
type ReferencePoint struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
}

// ValidatorThresholds holds the eight tunable data-quality gates of §4.2.
type ValidatorThresholds struct {
	AccelMaxG    float64
	GyroMaxDPS   float64
	MagMinUT     float64
	MagMaxUT     float64
	AltitudeMinM float64
	AltitudeMaxM float64
	TempMinC     float64
	TempMaxC     float64
}

// EKFNoise holds the scale factors for the EKF's initial covariance and
// process/measurement noise matrices (§4.3 "Initialization").
type EKFNoise struct {
	P0Pos      float64
	P0Vel      float64
	P0Quat     float64
	P0GyroBias float64
	P0AccelZ   float64
	P0Baro     float64

	QPos      float64
	QVel      float64
	QQuat     float64
	QGyroBias float64
	QAccelZ   float64
	QBaro     float64

	RAccel float64 // diagonal scale, 3x3
	RBaro  float64 // scalar
	RMag   float64 // diagonal scale, 3x3
	RGPS   float64 // diagonal scale, 3x3

	MagReferenceNED [3]float64
}

// PhaseThresholds holds every tunable constant of the flight-phase state
// machine (§4.4), not only the launch threshold/duration called out in
// spec.md §6's table — the original source (config.py) exposes the full
// set as independently overridable fields and this config follows suit.
type PhaseThresholds struct {
	LaunchAccelG           float64
	LaunchMinDuration      float64 // seconds
	BoostMinDuration       float64 // seconds
	BoostAccelFrac         float64 // fraction of launch threshold
	BurnoutDropG           float64
	CoastMinDuration       float64 // seconds
	ApogeeVelocityThresh   float64 // m/s
	ApogeeWindowHalfWidth  float64 // seconds
	LandingAltitudeM       float64
	LandingVelocitySamples int
	LandedAltitudeM        float64
	LandedVelocityMS       float64
	LandedAccelStdG        float64
	LandedAccelMeanG       float64
	LandedAccelToleranceG  float64
}

// Config is the full tunable surface of the telemetry core (§6).
type Config struct {
	Reference ReferencePoint
	Validator ValidatorThresholds
	EKF       EKFNoise
	Phase     PhaseThresholds
}

// DefaultConfig returns the defaults named throughout spec.md §4.2-§4.4.
func DefaultConfig() Config {
	return Config{
		Validator: ValidatorThresholds{
			AccelMaxG:    20,
			GyroMaxDPS:   2000,
			MagMinUT:     10,
			MagMaxUT:     100,
			AltitudeMinM: -1000,
			AltitudeMaxM: 50000,
			TempMinC:     -40,
			TempMaxC:     85,
		},
		EKF: EKFNoise{
			P0Pos: 10, P0Vel: 5, P0Quat: 0.1, P0GyroBias: 0.01, P0AccelZ: 0.1, P0Baro: 5.0,
			QPos: 0.1, QVel: 1.0, QQuat: 0.01, QGyroBias: 1e-6, QAccelZ: 1e-4, QBaro: 1e-3,
			RAccel:          0.35,
			RBaro:           2.0,
			RMag:            4.0,
			RGPS:            9.0,
			MagReferenceNED: [3]float64{20, -30, 40},
		},
		Phase: PhaseThresholds{
			LaunchAccelG:           2.0,
			LaunchMinDuration:      0.3,
			BoostMinDuration:       0.3,
			BoostAccelFrac:         0.8,
			BurnoutDropG:           1.5,
			CoastMinDuration:       0.2,
			ApogeeVelocityThresh:   0.5,
			ApogeeWindowHalfWidth:  5.0,
			LandingAltitudeM:       20,
			LandingVelocitySamples: 10,
			LandedAltitudeM:        10,
			LandedVelocityMS:       0.5,
			LandedAccelStdG:        0.1,
			LandedAccelMeanG:       1.0,
			LandedAccelToleranceG:  0.2,
		},
	}
}

// LoadConfig reads a TOML configuration overlay from the directory named by
// the GROUNDSTATION_CONFIG environment variable, following the teacher's
// _smdconfig/smdConfig pattern (the original config.go): panic if the env
// var is set but the file cannot be read. Unlike the teacher, a missing env
// var is not itself fatal: the telemetry core has usable defaults and does
// not require an external config directory to run or be tested standalone.
func LoadConfig() Config {
	cfg := DefaultConfig()
	confPath := os.Getenv("GROUNDSTATION_CONFIG")
	if confPath == "" {
		return cfg
	}
	viper.SetConfigName("conf")
	viper.AddConfigPath(confPath)
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("%s/conf.toml not found: %w", confPath, err))
	}

	applyFloat := func(key string, dst *float64) {
		if viper.IsSet(key) {
			*dst = viper.GetFloat64(key)
		}
	}
	applyFloat("reference.lat_deg", &cfg.Reference.LatDeg)
	applyFloat("reference.lon_deg", &cfg.Reference.LonDeg)
	applyFloat("reference.alt_m", &cfg.Reference.AltM)

	applyFloat("validator.accel_max_g", &cfg.Validator.AccelMaxG)
	applyFloat("validator.gyro_max_dps", &cfg.Validator.GyroMaxDPS)
	applyFloat("validator.mag_min_ut", &cfg.Validator.MagMinUT)
	applyFloat("validator.mag_max_ut", &cfg.Validator.MagMaxUT)
	applyFloat("validator.altitude_min_m", &cfg.Validator.AltitudeMinM)
	applyFloat("validator.altitude_max_m", &cfg.Validator.AltitudeMaxM)
	applyFloat("validator.temp_min_c", &cfg.Validator.TempMinC)
	applyFloat("validator.temp_max_c", &cfg.Validator.TempMaxC)

	applyFloat("phase.launch_accel_g", &cfg.Phase.LaunchAccelG)
	applyFloat("phase.launch_min_duration_s", &cfg.Phase.LaunchMinDuration)
	applyFloat("phase.apogee_window_half_width_s", &cfg.Phase.ApogeeWindowHalfWidth)

	return cfg
}
