package telemetry

import (
	"strconv"
	"strings"
	"time"
)

// Mode distinguishes the two Brunito wire variants (§3).
type Mode uint8

const (
	// Armed carries the full 16-field record: IMU, magnetometer, GPS,
	// altitude and temperature.
	Armed Mode = iota + 1
	// Recovery carries the reduced 7-field record sent once the flight
	// computer has shed its high-rate sensors: GPS, altitude, temperature.
	Recovery
)

func (m Mode) String() string {
	switch m {
	case Armed:
		return "armed"
	case Recovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Sample is a single parsed, unvalidated telemetry record (§3 "Parsed
// sample"). Armed-only fields are present (non-zero-valued for a genuine
// reading) only when Mode == Armed; callers must branch on Mode before
// trusting them, per the "polymorphic packet variants" design note (§9).
type Sample struct {
	Mode      Mode
	Timestamp time.Time
	PacketID  uint64

	AltitudeM float64

	AccelMS2 [3]float64 // body frame, m/s^2 (Armed only)
	GyroDPS  [3]float64 // body frame, deg/s (Armed only)
	MagUT    [3]float64 // body frame, uT (Armed only)

	LatDeg float64
	LonDeg float64
	Sats   int
	TempC  int

	// Derived magnitudes (§3).
	AccelMagMS2 float64
	AccelMagG   float64
	GyroMagDPS  float64
	MagMagUT    float64
}

// Parser decodes framed Brunito records into Samples. It is pure and
// re-entrant (§4.1): no field is touched by any method except the packet id
// and the success/error counters, and concurrent callers must not share one Parser without external
// synchronization (none is provided, matching the single-threaded pipeline
// of §5).
type Parser struct {
	nextID  uint64
	ok      uint64
	errored uint64
}

// NewParser returns a ready-to-use Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Successes returns the number of packets successfully parsed so far.
func (p *Parser) Successes() uint64 { return p.ok }

// Errors returns the number of packets dropped due to a parse failure.
func (p *Parser) Errors() uint64 { return p.errored }

// Parse decodes one line of raw wire text into a Sample. On failure it
// returns a *Error of kind MalformedFrame or FieldDecode and increments the
// error counter; on success it increments the success counter and assigns
// the next monotonically increasing packet id.
func (p *Parser) Parse(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '<' || line[len(line)-1] != '>' {
		p.errored++
		return Sample{}, newErr(MalformedFrame, "frame", nil)
	}
	body := line[1 : len(line)-1]
	fields := strings.Split(body, ",")

	var mode Mode
	switch len(fields) {
	case 16:
		mode = Armed
	case 7:
		mode = Recovery
	default:
		p.errored++
		return Sample{}, newErr(MalformedFrame, "field_count", nil)
	}

	s, err := p.decode(mode, fields)
	if err != nil {
		p.errored++
		return Sample{}, err
	}
	p.ok++
	p.nextID++
	s.PacketID = p.nextID
	return s, nil
}

func (p *Parser) decode(mode Mode, f []string) (Sample, error) {
	var s Sample
	s.Mode = mode

	var dateStr, timeStr string
	var err error
	switch mode {
	case Armed:
		dateStr, timeStr = f[0], f[1]
		if s.AltitudeM, err = parseFloat(f[2], "altitude_m"); err != nil {
			return Sample{}, err
		}
		if s.AccelMS2, err = parseScaledVec3(f[3], f[4], f[5], "accel", 0.001*g0); err != nil {
			return Sample{}, err
		}
		if s.GyroDPS, err = parseScaledVec3(f[6], f[7], f[8], "gyro", 1.0/100.0); err != nil {
			return Sample{}, err
		}
		if s.MagUT, err = parseScaledVec3(f[9], f[10], f[11], "mag", 1.0/10.0); err != nil {
			return Sample{}, err
		}
		var latRaw, lonRaw float64
		if latRaw, err = parseFloat(f[12], "lat_e7"); err != nil {
			return Sample{}, err
		}
		if lonRaw, err = parseFloat(f[13], "lon_e7"); err != nil {
			return Sample{}, err
		}
		s.LatDeg = latRaw / 1e7
		s.LonDeg = lonRaw / 1e7
		if s.Sats, err = parseInt(f[14], "sats"); err != nil {
			return Sample{}, err
		}
		if s.TempC, err = parseInt(f[15], "temp_c"); err != nil {
			return Sample{}, err
		}
		s.AccelMagMS2 = norm3(s.AccelMS2)
		s.AccelMagG = s.AccelMagMS2 / g0
		s.GyroMagDPS = norm3(s.GyroDPS)
		s.MagMagUT = norm3(s.MagUT)
	case Recovery:
		dateStr, timeStr = f[0], f[1]
		var latRaw, lonRaw float64
		if latRaw, err = parseFloat(f[2], "lat_e7"); err != nil {
			return Sample{}, err
		}
		if lonRaw, err = parseFloat(f[3], "lon_e7"); err != nil {
			return Sample{}, err
		}
		s.LatDeg = latRaw / 1e7
		s.LonDeg = lonRaw / 1e7
		if s.AltitudeM, err = parseFloat(f[4], "altitude_m"); err != nil {
			return Sample{}, err
		}
		if s.Sats, err = parseInt(f[5], "sats"); err != nil {
			return Sample{}, err
		}
		if s.TempC, err = parseInt(f[6], "temp_c"); err != nil {
			return Sample{}, err
		}
	}

	ts, err := time.Parse("01/02/2006 15:04:05", dateStr+" "+timeStr)
	if err != nil {
		return Sample{}, newErr(FieldDecode, "timestamp", err)
	}
	s.Timestamp = ts.UTC()
	return s, nil
}

func parseFloat(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, newErr(FieldDecode, field, err)
	}
	return v, nil
}

func parseInt(raw, field string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, newErr(FieldDecode, field, err)
	}
	return v, nil
}

func parseScaledVec3(rx, ry, rz, field string, scale float64) ([3]float64, error) {
	x, err := parseFloat(rx, field+"_x")
	if err != nil {
		return [3]float64{}, err
	}
	y, err := parseFloat(ry, field+"_y")
	if err != nil {
		return [3]float64{}, err
	}
	z, err := parseFloat(rz, field+"_z")
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{x * scale, y * scale, z * scale}, nil
}
