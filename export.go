package telemetry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/soniakeys/meeus/julian"
)

// Sink receives one EnrichedRecord at a time. Implementations must not
// block the pipeline goroutine for long; StreamRecords runs them from a
// dedicated consumer goroutine reading off a buffered channel, mirroring
// the teacher's channel-consumer export pattern.
type Sink interface {
	Write(rec EnrichedRecord) error
	Close() error
}

// CSVSink writes one row per record in a flat, spreadsheet-friendly layout.
// AppendExtra, if set, appends extra comma-separated columns per row
// (teacher's CSVAppend hook). AppendExtraHdr mirrors the teacher's
// CSVAppendHdr hook but is never written: NewCSVSink emits the header row
// before the field can be set, so the extra columns have no header text.
type CSVSink struct {
	f               *os.File
	w               *csv.Writer
	AppendExtra     func(rec EnrichedRecord) []string
	AppendExtraHdr  []string
}

// NewCSVSink creates filename and writes the header row.
func NewCSVSink(filename string) (*CSVSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	header := []string{
		"timestamp_utc", "julian_day", "mode", "packet_id",
		"altitude_m", "pos_n", "pos_e", "pos_d",
		"vel_n", "vel_e", "vel_d",
		"q_w", "q_x", "q_y", "q_z",
		"roll_deg", "pitch_deg", "yaw_deg",
		"flight_phase", "mission_time_s", "is_healthy",
	}
	if err := s.w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Write appends one row, flushing immediately so a crash loses at most the
// in-flight record.
func (s *CSVSink) Write(rec EnrichedRecord) error {
	row := []string{
		rec.Sample.Timestamp.UTC().Format(time.RFC3339Nano),
		fmt.Sprintf("%.6f", julian.TimeToJD(rec.Sample.Timestamp)),
		rec.Sample.Mode.String(),
		fmt.Sprintf("%d", rec.Sample.PacketID),
		fmt.Sprintf("%.3f", rec.Sample.AltitudeM),
	}
	if rec.FilteredState != nil {
		st := rec.FilteredState
		row = append(row,
			fmt.Sprintf("%.3f", st.PositionNED[0]), fmt.Sprintf("%.3f", st.PositionNED[1]), fmt.Sprintf("%.3f", st.PositionNED[2]),
			fmt.Sprintf("%.3f", st.VelocityNED[0]), fmt.Sprintf("%.3f", st.VelocityNED[1]), fmt.Sprintf("%.3f", st.VelocityNED[2]),
			fmt.Sprintf("%.6f", st.Quaternion[0]), fmt.Sprintf("%.6f", st.Quaternion[1]), fmt.Sprintf("%.6f", st.Quaternion[2]), fmt.Sprintf("%.6f", st.Quaternion[3]),
			fmt.Sprintf("%.2f", st.EulerAnglesDeg[0]), fmt.Sprintf("%.2f", st.EulerAnglesDeg[1]), fmt.Sprintf("%.2f", st.EulerAnglesDeg[2]),
		)
	} else {
		row = append(row, "", "", "", "", "", "", "", "", "", "", "", "", "")
	}
	row = append(row,
		rec.FlightPhase.String(),
		fmt.Sprintf("%.3f", rec.MissionTimeS),
		fmt.Sprintf("%v", rec.FilterHealth.IsHealthy),
	)
	if s.AppendExtra != nil {
		row = append(row, s.AppendExtra(rec)...)
	}
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	return s.f.Close()
}

// JSONSink writes newline-delimited JSON, one EnrichedRecord per line,
// matching §6's "structured map" output-record shape directly.
type JSONSink struct {
	w io.WriteCloser
	enc *json.Encoder
}

// NewJSONSink creates filename for newline-delimited JSON output.
func NewJSONSink(filename string) (*JSONSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	return &JSONSink{w: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONSink) Write(rec EnrichedRecord) error {
	return s.enc.Encode(jsonRecord(rec))
}

func (s *JSONSink) Close() error { return s.w.Close() }

// jsonRecord reshapes an EnrichedRecord into the field names §6 names
// explicitly (filtered_state, flight_phase, mission_time_s, ...).
func jsonRecord(rec EnrichedRecord) map[string]interface{} {
	m := map[string]interface{}{
		"sample":         rec.Sample,
		"quality":        rec.Quality,
		"flight_phase":   rec.FlightPhase.String(),
		"mission_time_s": rec.MissionTimeS,
		"events":         rec.Events,
		"flight_summary": rec.Summary,
	}
	if rec.FilteredState != nil {
		m["filtered_state"] = map[string]interface{}{
			"position_ned":       rec.FilteredState.PositionNED,
			"velocity_ned":        rec.FilteredState.VelocityNED,
			"quaternion":          rec.FilteredState.Quaternion,
			"euler_angles_deg":    rec.FilteredState.EulerAnglesDeg,
			"altitude":            rec.FilteredState.Altitude,
			"vertical_velocity":   rec.FilteredState.VerticalVelocity,
			"speed":               rec.FilteredState.Speed,
			"filter_health":       rec.FilterHealth,
		}
	} else {
		m["filtered_state"] = nil
		m["filter_error"] = rec.FilterError
	}
	return m
}

// StreamRecords drains recs into sink until the channel closes, mirroring
// the teacher's StreamStates channel-consumer (export.go): run it from its
// own goroutine and close recs to signal completion.
func StreamRecords(sink Sink, recs <-chan EnrichedRecord) error {
	for rec := range recs {
		if err := sink.Write(rec); err != nil {
			return err
		}
	}
	return sink.Close()
}
