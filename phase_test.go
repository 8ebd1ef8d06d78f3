package telemetry

import (
	"testing"
	"time"
)

func tsAt(base time.Time, i int, step time.Duration) time.Time {
	return base.Add(time.Duration(i) * step)
}

func padSample(ts time.Time) Sample {
	return Sample{Mode: Armed, Timestamp: ts, AltitudeM: 3.0, AccelMS2: [3]float64{0, 0, g0}, AccelMagMS2: g0, AccelMagG: 1.0}
}

func TestArmTransitionsFromIdleToArmed(t *testing.T) {
	d := NewEventDetector(DefaultConfig().Phase)
	base := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	d.Arm(base)
	if d.phase != PhaseArmed {
		t.Fatalf("phase = %v, want armed", d.phase)
	}
	if len(d.history) != 2 || d.history[0].Phase != Idle || d.history[1].Phase != PhaseArmed {
		t.Fatalf("unexpected history: %+v", d.history)
	}
}

func TestStationaryOnPadStaysArmed(t *testing.T) {
	d := NewEventDetector(DefaultConfig().Phase)
	base := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	d.Arm(base)
	for i := 0; i < 100; i++ {
		s := padSample(tsAt(base, i+1, 100*time.Millisecond))
		d.Process(s, 0, true)
	}
	if d.phase != PhaseArmed {
		t.Fatalf("phase = %v, want armed (no launch acceleration observed)", d.phase)
	}
}

func TestLaunchTriggersOnSustainedHighAccel(t *testing.T) {
	d := NewEventDetector(DefaultConfig().Phase)
	base := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	d.Arm(base)
	for i := 0; i < 10; i++ {
		s := padSample(tsAt(base, i+1, 50*time.Millisecond))
		s.AccelMagG = 8.0
		d.Process(s, 0, true)
	}
	if d.phase != Launch {
		t.Fatalf("phase = %v, want launch after sustained 8g", d.phase)
	}
}

func TestDisarmReturnsToIdleAndSuppressesFurtherEvents(t *testing.T) {
	d := NewEventDetector(DefaultConfig().Phase)
	base := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	d.Arm(base)
	for i := 0; i < 10; i++ {
		s := padSample(tsAt(base, i+1, 50*time.Millisecond))
		s.AccelMagG = 8.0
		d.Process(s, 0, true)
	}
	d.Disarm(tsAt(base, 11, 50*time.Millisecond))
	if d.phase != Idle {
		t.Fatalf("phase = %v, want idle after disarm", d.phase)
	}
	before := len(d.events)
	for i := 11; i < 20; i++ {
		s := padSample(tsAt(base, i+1, 50*time.Millisecond))
		s.AccelMagG = 8.0
		d.Process(s, 0, true)
	}
	if len(d.events) != before {
		t.Fatalf("expected no further events while idle, got %d new", len(d.events)-before)
	}
}

func TestPhaseHistoryIsMonotoneInTimestamp(t *testing.T) {
	d := NewEventDetector(DefaultConfig().Phase)
	base := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	d.Arm(base)
	for i := 0; i < 20; i++ {
		s := padSample(tsAt(base, i+1, 50*time.Millisecond))
		s.AccelMagG = 8.0
		d.Process(s, 0, true)
	}
	for i := 1; i < len(d.history); i++ {
		if d.history[i].Timestamp.Before(d.history[i-1].Timestamp) {
			t.Fatalf("phase history not monotone at index %d", i)
		}
	}
}

func TestLinearFitRecoversKnownSlope(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{10, 8, 6, 4, 2}
	a, b, ok := linearFit(xs, ys)
	if !ok {
		t.Fatal("expected a valid fit")
	}
	if a > -1.9 || a < -2.1 {
		t.Fatalf("slope = %v, want ~-2", a)
	}
	if b < 9.9 || b > 10.1 {
		t.Fatalf("intercept = %v, want ~10", b)
	}
}

func TestRingBufferDropsOldest(t *testing.T) {
	r := newRingBuffer(3)
	r.push(1)
	r.push(2)
	r.push(3)
	r.push(4)
	got := r.all()
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("all() = %v, want %v", got, want)
		}
	}
}
