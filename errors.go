package telemetry

import "fmt"

// Kind enumerates the named failure modes of the telemetry core. No error
// kind is fatal to the pipeline; every kind has a defined recovery action
// described alongside its constant.
type Kind uint8

const (
	// MalformedFrame: framing or field-count failure. Drop packet, bump
	// the parser error counter, return nothing.
	MalformedFrame Kind = iota + 1
	// FieldDecode: numeric parse failure on a field. Same handling as
	// MalformedFrame.
	FieldDecode
	// ClockAnomaly: non-positive or excessive dt. Substitute 0.1s, log,
	// continue.
	ClockAnomaly
	// SingularInnovation: H·P·Hᵀ+R not invertible for the current update.
	// Skip that update, continue.
	SingularInnovation
	// FilterDivergence: state or covariance went non-finite. Filter marked
	// unhealthy and flagged for re-initialization on the next sample.
	FilterDivergence
	// InvalidMeasurement: a single measurement is out of range or
	// otherwise unusable. Reject that measurement only.
	InvalidMeasurement
	// PhaseInputError: an external phase command was not recognized. Log
	// and ignore.
	PhaseInputError
)

func (k Kind) String() string {
	switch k {
	case MalformedFrame:
		return "malformed_frame"
	case FieldDecode:
		return "field_decode"
	case ClockAnomaly:
		return "clock_anomaly"
	case SingularInnovation:
		return "singular_innovation"
	case FilterDivergence:
		return "filter_divergence"
	case InvalidMeasurement:
		return "invalid_measurement"
	case PhaseInputError:
		return "phase_input_error"
	default:
		return "unknown"
	}
}

// Error is the error type the parser returns for its failure kinds; the
// export sinks return ordinary wrapped errors. Callers that need to branch
// on the failure kind should use errors.As and inspect Kind.
type Error struct {
	Kind    Kind
	Field   string // optional: which field/measurement triggered it
	Wrapped error  // optional: underlying cause, e.g. a strconv error
}

func (e *Error) Error() string {
	if e.Field != "" {
		if e.Wrapped != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Wrapped)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Wrapped)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Wrapped }

func newErr(k Kind, field string, wrapped error) *Error {
	return &Error{Kind: k, Field: field, Wrapped: wrapped}
}
