// Package obs adapts zerolog for the motion core (SPEC_FULL.md §10.1),
// grounded on the teacher's pkg/logger package: a built-once
// zerolog.Logger plus a small set of lock-free counters for the hot paths
// (DDA ISR, exec segment loop) that must never log synchronously.
package obs

import (
	"encoding/binary"
	"os"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"github.com/synthetos/g2motion/motion"
)

// New builds a console-formatted logger for development use, matching
// itohio-EasyRobot's pkg/logger.New: caller info attached, human-readable
// output to stderr.
func New(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

// Counters are lock-free tallies kept instead of logging synchronously on
// the hot paths (SPEC_FULL.md §10.1). runtime.Controller bumps
// SegmentsRun, BuffersAdmitted and BuffersFreed around the exec segment
// loop, and LogFault bumps Faults; nothing in this module increments Steps
// or CounterResets, so they read zero unless a host adds to them. A
// reporter goroutine or tick drains them into structured log lines at
// whatever cadence the host application wants.
type Counters struct {
	Steps           atomic.Uint64 // total step pulses emitted, summed over motors
	SegmentsRun     atomic.Uint64
	BuffersAdmitted atomic.Uint64
	BuffersFreed    atomic.Uint64
	CounterResets   atomic.Uint64 // DDA anti-stall re-seeds (stepper.PrepSlot.CounterReset)
	Faults          atomic.Uint64
}

// Snapshot is an immutable copy of Counters suitable for logging or
// exposing over a status endpoint.
type Snapshot struct {
	Steps, SegmentsRun, BuffersAdmitted, BuffersFreed, CounterResets, Faults uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Steps:           c.Steps.Load(),
		SegmentsRun:     c.SegmentsRun.Load(),
		BuffersAdmitted: c.BuffersAdmitted.Load(),
		BuffersFreed:    c.BuffersFreed.Load(),
		CounterResets:   c.CounterResets.Load(),
		Faults:          c.Faults.Load(),
	}
}

// Report logs one snapshot line at Debug level, the reporter-tick
// counterpart to the synchronous Debug lines emitted by aline()/replan().
func Report(log zerolog.Logger, c *Counters) {
	s := c.Snapshot()
	log.Debug().
		Uint64("steps", s.Steps).
		Uint64("segments_run", s.SegmentsRun).
		Uint64("buffers_admitted", s.BuffersAdmitted).
		Uint64("buffers_freed", s.BuffersFreed).
		Uint64("counter_resets", s.CounterResets).
		Uint64("faults", s.Faults).
		Msg("motion: counters")
}

// LogFault records a PANIC-disposition fault at Error level (SPEC_FULL.md
// §10.2). runtime.Controller calls it after recovering the panic value and
// type-asserting it to motion.Fault; LogFault only observes it.
func LogFault(log zerolog.Logger, f motion.Fault, c *Counters) {
	if c != nil {
		c.Faults.Add(1)
	}
	log.Error().
		Str("code", f.Code.String()).
		Str("context", f.Context).
		Str("alarm_token", AlarmToken(f)).
		Msg("motion: fault")
}

// AlarmToken encodes a fault's code and truncated context into a short
// base58 token, the Go-hosted counterpart of TinyG2's compact alarm
// codes (e.g. "AL1") that fit on a status line with no room for a full
// log message — a serial console or small display can show this instead
// of the full Context string.
func AlarmToken(f motion.Fault) string {
	ctx := f.Context
	const maxCtx = 12
	if len(ctx) > maxCtx {
		ctx = ctx[:maxCtx]
	}
	buf := make([]byte, 4+len(ctx))
	binary.BigEndian.PutUint32(buf, uint32(f.Code))
	copy(buf[4:], ctx)
	return base58.Encode(buf)
}
