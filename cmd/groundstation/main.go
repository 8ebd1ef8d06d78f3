// Command groundstation replays Brunito wire telemetry through the
// parse/validate/EKF/event-detector pipeline and streams the enriched
// records to a CSV or newline-delimited JSON sink.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	kitlog "github.com/go-kit/kit/log"

	telemetry "github.com/Lmx154/BOOM"
)

var (
	inputPath  = flag.String("input", "", "path to a file of framed Brunito lines (default: stdin)")
	outputPath = flag.String("output", "", "path to write enriched records (default: stdout, CSV)")
	format     = flag.String("format", "csv", "output format: csv or json")
	armAt      = flag.Duration("arm-after", 0, "arm the pipeline this long after the first packet (0 disables)")
)

func main() {
	flag.Parse()

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)

	cfg := telemetry.LoadConfig()
	pipeline := telemetry.NewPipeline(cfg, kitlog.With(logger, "subsys", "pipeline"))

	in, closeIn := openInput(*inputPath)
	defer closeIn()
	sink, closeSink := openSink(*outputPath, *format)
	defer closeSink()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make(chan telemetry.EnrichedRecord, 64)
	go pipeline.Run(ctx, lines, out)

	var armed bool
	var firstPacket time.Time
	for rec := range out {
		if *armAt > 0 && !armed {
			if firstPacket.IsZero() {
				firstPacket = rec.Sample.Timestamp
			}
			if rec.Sample.Timestamp.Sub(firstPacket) >= *armAt {
				pipeline.Arm(rec.Sample.Timestamp)
				armed = true
			}
		}
		if err := sink.Write(rec); err != nil {
			logger.Log("level", "error", "msg", "sink write failed", "err", err)
			break
		}
	}

	stats := pipeline.Stats()
	logger.Log("level", "info", "msg", "run complete",
		"parsed", stats.ParserSuccesses, "parse_errors", stats.ParserErrors,
		"ekf_clock_anomalies", stats.EKF.ClockAnomalies, "ekf_divergences", stats.EKF.Divergences)
}

func openInput(path string) (*os.File, func()) {
	if path == "" {
		return os.Stdin, func() {}
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open input %s: %v", path, err)
	}
	return f, func() { f.Close() }
}

func openSink(path, format string) (telemetry.Sink, func()) {
	if path == "" {
		path = os.Stdout.Name()
	}
	switch strings.ToLower(format) {
	case "json":
		s, err := telemetry.NewJSONSink(path)
		if err != nil {
			log.Fatalf("open output %s: %v", path, err)
		}
		return s, func() { s.Close() }
	default:
		s, err := telemetry.NewCSVSink(path)
		if err != nil {
			log.Fatalf("open output %s: %v", path, err)
		}
		return s, func() { s.Close() }
	}
}
