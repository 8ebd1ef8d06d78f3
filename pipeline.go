package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

// EnrichedRecord is the output record of §6: "all parsed sample fields,
// quality ... filtered_state ... flight_phase, mission_time_s, events ...
// and flight_summary". FilteredState is nil only when the raw line could not
// be parsed (see ProcessLine); FilterError then carries the parse error.
type EnrichedRecord struct {
	Sample       Sample
	Quality      Quality
	FilteredState *State
	FilterHealth  Health
	FilterError   string

	FlightPhase  Phase
	MissionTimeS float64
	Events       []Event
	Summary      Summary
}

// PipelineStats is a lock-free snapshot of the parser's success/error
// counters and the EKF's update counters. Validation results are not tallied.
type PipelineStats struct {
	ParserSuccesses uint64
	ParserErrors    uint64
	EKF             EKFStats
}

// Pipeline is the single owned value of §9 ("consolidate these into a
// single owned Pipeline value created once per session and passed by
// reference"). It composes the four stages of §1's overview — Parser,
// Validator, EKF, EventDetector — and runs them in strict per-packet order,
// matching §5's single-threaded, cooperative concurrency model.
type Pipeline struct {
	parser    *Parser
	validator *Validator
	ekf       *EKF
	detector  *EventDetector
	reference ReferencePoint
	log       kitlog.Logger

	armed uint32 // atomic bool: written only by Arm/Disarm
}

// NewPipeline constructs a Pipeline from cfg. logger may be nil.
func NewPipeline(cfg Config, logger kitlog.Logger) *Pipeline {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &Pipeline{
		parser:    NewParser(),
		validator: NewValidator(cfg.Validator),
		ekf:       NewEKF(cfg.EKF, kitlog.With(logger, "subsys", "ekf")),
		detector:  NewEventDetector(cfg.Phase),
		reference: cfg.Reference,
		log:       logger,
	}
}

// Arm issues the external arm command (§6 "Command interface").
func (p *Pipeline) Arm(now time.Time) {
	atomic.StoreUint32(&p.armed, 1)
	p.detector.Arm(now)
}

// Disarm issues the external disarm command.
func (p *Pipeline) Disarm(now time.Time) {
	atomic.StoreUint32(&p.armed, 0)
	p.detector.Disarm(now)
}

// Stats returns a lock-free snapshot of the pipeline's counters (§5).
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		ParserSuccesses: p.parser.Successes(),
		ParserErrors:    p.parser.Errors(),
		EKF:             p.ekf.Stats(),
	}
}

// ProcessLine runs one raw wire line through all four stages in order
// (§5: "runs the four pipeline stages in strict order per packet") and
// returns the enriched record. A parse failure yields an EnrichedRecord
// with a zero Sample and FilterError set, never an error return: per §7,
// "no error kind is fatal to the pipeline".
func (p *Pipeline) ProcessLine(line string) EnrichedRecord {
	s, err := p.parser.Parse(line)
	if err != nil {
		p.log.Log("subsys", "pipeline", "level", "warn", "msg", "dropped malformed packet", "err", err)
		return EnrichedRecord{FilterError: err.Error()}
	}
	return p.Process(s)
}

// Process runs an already-decoded Sample through validation, the EKF and
// the event detector.
func (p *Pipeline) Process(s Sample) EnrichedRecord {
	quality := p.validator.Validate(s)
	state, health := p.ekf.Step(s, quality, p.reference)

	vz := state.VerticalVelocity
	events := p.detector.Process(s, vz, true)
	summary := p.detector.Summary(s.Timestamp)

	rec := EnrichedRecord{
		Sample:        s,
		Quality:       quality,
		FilteredState: &state,
		FilterHealth:  health,
		FlightPhase:   summary.CurrentPhase,
		MissionTimeS:  summary.MissionTimeS,
		Events:        events,
		Summary:       summary,
	}
	if !health.IsHealthy {
		p.log.Log("subsys", "pipeline", "level", "warn", "msg", "filter health degraded", "health", health)
	}
	return rec
}

// Run consumes raw wire lines from in until the channel closes or ctx is
// canceled, publishing one EnrichedRecord per line to out (§5: "publishes
// the enriched record to a broadcast channel"). Cancellation interrupts
// only while awaiting the next line, never mid-packet, per §5's
// cancellation policy.
func (p *Pipeline) Run(ctx context.Context, in <-chan string, out chan<- EnrichedRecord) {
	defer close(out)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case line, more := <-in:
			if !more {
				return
			}
			out <- p.ProcessLine(line)
		case <-ticker.C:
			stats := p.Stats()
			p.log.Log("subsys", "pipeline", "level", "info", "msg", "status",
				"parsed", stats.ParserSuccesses, "parse_errors", stats.ParserErrors,
				"clock_anomalies", stats.EKF.ClockAnomalies, "divergences", stats.EKF.Divergences)
		}
	}
}
