package telemetry

import "testing"

func TestGeodeticToNEDAtReferenceIsZero(t *testing.T) {
	ref := ReferencePoint{LatDeg: 32.94, LonDeg: -106.92, AltM: 1400}
	ned := geodeticToNED(ref.LatDeg, ref.LonDeg, ref.AltM, ref)
	for i, v := range ned {
		if v < -1e-6 || v > 1e-6 {
			t.Fatalf("ned[%d] = %v, want ~0 at the reference point itself", i, v)
		}
	}
}

func TestGeodeticToNEDNorthIsPositive(t *testing.T) {
	ref := ReferencePoint{LatDeg: 32.94, LonDeg: -106.92, AltM: 1400}
	// A point slightly north of the reference should show positive North.
	ned := geodeticToNED(ref.LatDeg+0.01, ref.LonDeg, ref.AltM, ref)
	if ned[0] <= 0 {
		t.Fatalf("north component = %v, want > 0 for a point north of the reference", ned[0])
	}
	if abs(ned[1]) > 50 {
		t.Fatalf("east component = %v, want ~0 for a point due north", ned[1])
	}
}

func TestGeodeticToNEDAltitudeIsDown(t *testing.T) {
	ref := ReferencePoint{LatDeg: 32.94, LonDeg: -106.92, AltM: 1400}
	// A point higher than the reference should show negative Down.
	ned := geodeticToNED(ref.LatDeg, ref.LonDeg, ref.AltM+100, ref)
	if ned[2] >= 0 {
		t.Fatalf("down component = %v, want < 0 for a point above the reference", ned[2])
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
