// Package planner implements the look-ahead trajectory planner: buffer
// pool (C7), junction-velocity calculator (C8), jerk/move-time computer
// (C9), aline() admission (C10) and the backward/forward look-ahead passes
// (C6), spec.md §4.1, §4.2, §4.9, §4.10.
package planner

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/rs/zerolog"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/config"
)

// State is the look-ahead planner's top-level mode (spec.md §4.10).
type State int

const (
	StateIdle State = iota
	StateStartup
	StateOptimistic
	StatePessimistic
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStartup:
		return "STARTUP"
	case StateOptimistic:
		return "OPTIMISTIC"
	case StatePessimistic:
		return "PESSIMISTIC"
	default:
		return "UNKNOWN"
	}
}

// Planner owns the buffer ring and drives admission + look-ahead.
type Planner struct {
	Ring     *Ring
	Settings config.Settings
	Log      zerolog.Logger

	lastPosition [motion.Axes]float32
	state        State
	lastArrival  time.Time
	now          func() time.Time
}

// New creates a planner over a freshly allocated ring sized from
// settings.RingSize.
func New(settings config.Settings, log zerolog.Logger) *Planner {
	size := settings.RingSize
	if size <= 0 {
		size = motion.PlannerRingMinSize + motion.PlannerBufferHeadroom
	}
	return &Planner{
		Ring:     NewRing(size),
		Settings: settings,
		Log:      log,
		state:    StateIdle,
		now:      time.Now,
	}
}

// State returns the planner's current top-level mode.
func (p *Planner) State() State { return p.state }

func (p *Planner) velocityMax() (v [motion.Axes]float32) {
	for i := range v {
		v[i] = p.Settings.Axis[i].VelocityMax
	}
	return v
}

func (p *Planner) jerkMax() (v [motion.Axes]float32) {
	for i := range v {
		v[i] = p.Settings.Axis[i].JerkMax
	}
	return v
}

func (p *Planner) junctionDev() (v [motion.Axes]float32) {
	for i := range v {
		v[i] = p.Settings.Axis[i].JunctionDev
	}
	return v
}

// ALine admits a new Cartesian move into the ring (spec.md §4.1, C10).
func (p *Planner) ALine(gc motion.GCodeState, runner motion.SegmentRunner) (*motion.MoveBuffer, error) {
	var axisLength [motion.Axes]float32
	var lengthSq float32
	for i := 0; i < motion.Axes; i++ {
		axisLength[i] = gc.Target[i] - p.lastPosition[i]
		lengthSq += axisLength[i] * axisLength[i]
	}
	length := math32.Sqrt(lengthSq)
	if length < motion.LengthEps {
		return nil, motion.ErrMinimumLengthMove
	}

	requestedTime, _ := computeMoveTime(axisLength, gc, p.velocityMax())

	bf := p.Ring.GetWriteBuffer(motion.FaultBufferFull)
	bf.Kind = motion.MoveALine
	bf.Runner = runner
	bf.GCode = gc
	bf.Length = length
	bf.Target = gc.Target
	for i := 0; i < motion.Axes; i++ {
		bf.Unit[i] = axisLength[i] / length
		bf.AxisFlags[i] = axisLength[i] != 0
	}

	jerk, _ := computeJerk(bf.Unit, p.jerkMax())
	bf.Jerk = jerk
	if jerk > 0 {
		bf.RecipJerk = 1 / jerk
	}

	if requestedTime <= 0 {
		motion.Panic(motion.FaultAssertion, "aline: non-positive move time")
	}
	bf.CruiseVmax = length / requestedTime
	bf.CruiseVset = bf.CruiseVmax
	bf.DeltaVmax = targetVelocity(0, length, bf.Jerk)

	if gc.ExactStop {
		bf.EntryVmax = 0
		bf.ExitVmax = 0
		bf.Replannable = false
	} else {
		prev := bf.Prev()
		hasPredecessor := prev != nil && prev.State != motion.BufferEmpty && prev.Kind == motion.MoveALine
		if hasPredecessor {
			bf.JunctionVmax = junctionVmax(bf.CruiseVmax, prev.Unit, bf.Unit, p.junctionDev(), p.Settings.JunctionAcceleration)
		} else {
			// The machine is at rest with no prior direction to form a
			// corner against: there is no junction to limit, only the
			// fact that the first move starts from zero velocity.
			bf.JunctionVmax = 0
		}
		bf.EntryVmax = bf.JunctionVmax
		bf.ExitVmax = minf(bf.CruiseVmax, bf.EntryVmax+bf.DeltaVmax)
		bf.Replannable = true
	}
	bf.Plannable = true

	p.lastPosition = gc.Target
	p.Ring.QueueWriteBuffer(bf)
	p.lastArrival = p.now()

	p.Log.Debug().
		Float32("length", bf.Length).
		Float32("cruise_vmax", bf.CruiseVmax).
		Int("ring_count", p.Ring.Count()).
		Msg("aline admitted")

	p.onArrival()
	return bf, nil
}

// Dwell reserves a DWELL buffer (spec.md §4.12, C12). The segment runner
// is supplied by the dwell package; the ring/handoff discipline is
// otherwise identical to an ALine move.
func (p *Planner) Dwell(seconds float32, runner motion.SegmentRunner) (*motion.MoveBuffer, error) {
	if seconds <= 0 {
		return nil, motion.ErrZeroLengthMove
	}
	bf := p.Ring.GetWriteBuffer(motion.FaultGetPlannerBuffer)
	bf.Kind = motion.MoveDwell
	bf.Runner = runner
	bf.MoveTime = seconds
	bf.EntryVelocity, bf.CruiseVelocity, bf.ExitVelocity = 0, 0, 0
	bf.Replannable = false
	bf.Plannable = false
	bf.State = motion.BufferPrepped
	p.Ring.QueueWriteBuffer(bf)
	p.onArrival()
	return bf, nil
}

// QueueCommand reserves a COMMAND buffer carrying a synchronous callback
// executed by the runtime in queue order (spec.md §6, §11.1).
func (p *Planner) QueueCommand(cb motion.CommandFunc, values, flags [motion.Axes]float32) (*motion.MoveBuffer, error) {
	if cb == nil {
		motion.Panic(motion.FaultInternal, "queue_command: nil callback")
	}
	bf := p.Ring.GetWriteBuffer(motion.FaultGetPlannerBuffer)
	bf.Kind = motion.MoveCommand
	bf.CmFunc = cb
	bf.CmdValues = values
	bf.CmdFlags = flags
	bf.Replannable = false
	bf.Plannable = false
	p.Ring.QueueWriteBuffer(bf)
	p.onArrival()
	return bf, nil
}

// RequestQueueFlush empties all non-running buffers (spec.md §6).
func (p *Planner) RequestQueueFlush() {
	p.Ring.Flush()
	p.state = StateIdle
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
