// Package exec implements the segment executor (C3, spec.md §4.5) and the
// forward-difference velocity engine it rides on (C4, spec.md §4.6). Exec
// is the MEDIUM-priority stage: given a planned MoveBuffer it walks
// HEAD/BODY/TAIL, emitting one kinematically-converted segment per call
// into the prep slot for the loader to pick up.
package exec

import (
	"github.com/chewxy/math32"
	"github.com/rs/zerolog"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/config"
	"github.com/synthetos/g2motion/motion/hal"
	"github.com/synthetos/g2motion/motion/kinematics"
	"github.com/synthetos/g2motion/motion/stepper"
)

// section names the three ramp phases of a move (spec.md §4.5).
type section int

const (
	sectionHead section = iota
	sectionBody
	sectionTail
)

// sectionState is the per-section sub-state machine. NEW performs
// one-time setup; firstHalf/secondHalf straddle the forward-diff table's
// midpoint-sampled start (spec.md §4.6).
type sectionState int

const (
	stateNew sectionState = iota
	stateFirstHalf
	stateSecondHalf
)

// Exec is the runtime singleton that walks one MoveBuffer's ramp to
// completion, a segment at a time (spec.md §3 "Runtime context (mr)").
// One Exec instance serves the whole ring; it is reset at the start of
// every new buffer.
type Exec struct {
	Log          zerolog.Logger
	Kinematics   kinematics.Model
	Prep         *stepper.PrepSlot
	HAL          *hal.HAL
	Settings     config.Settings
	DDAFrequency float32
	SubstepScale float32
	StepsPerUnit [motion.Motors]float32
	Polarity     [motion.Motors]bool

	// position is the Cartesian position as of the end of the last
	// segment actually emitted; it survives across buffers.
	position [motion.Axes]float32

	positionSteps  [motion.Motors]float32
	commandedSteps [motion.Motors]float32
	targetSteps    [motion.Motors]float32
	followingError [motion.Motors]float32

	active bool
	bf     *motion.MoveBuffer

	// HoldActive suppresses waypoint snapping on a section's last segment
	// while a feedhold deceleration is in progress, since the hold has
	// already substituted its own target (spec.md §4.11, motion/feedhold).
	HoldActive bool

	unit      [motion.Axes]float32
	axisFlags [motion.Axes]bool
	target    [motion.Axes]float32
	waypoint  [3][motion.Axes]float32

	headLength, bodyLength, tailLength float32
	headTime, bodyTime, tailTime       float32
	executedBodyLength                 float32
	executedBodyTime                   float32

	sec      section
	secState sectionState

	segments        float32
	segmentCount    uint32
	segmentTime     float32
	segmentVelocity float32
	fd              forwardDiffs
}

// New creates an Exec bound to the given prep slot, HAL and kinematics.
func New(prep *stepper.PrepSlot, h *hal.HAL, model kinematics.Model, settings config.Settings, ddaFrequency, substepScale float32, stepsPerUnit [motion.Motors]float32, polarity [motion.Motors]bool, log zerolog.Logger) *Exec {
	return &Exec{
		Prep:         prep,
		HAL:          h,
		Kinematics:   model,
		Settings:     settings,
		DDAFrequency: ddaFrequency,
		SubstepScale: substepScale,
		StepsPerUnit: stepsPerUnit,
		Polarity:     polarity,
		Log:          log,
	}
}

// Position reports the Cartesian position as of the last emitted segment.
func (e *Exec) Position() [motion.Axes]float32 { return e.position }

// SetPosition seeds the runtime position, used once at startup before any
// move has run.
func (e *Exec) SetPosition(p [motion.Axes]float32) { e.position = p }

// RunSegment implements motion.SegmentRunner: one MEDIUM-priority call
// advances bf by exactly one segment (spec.md §4.5). Returns StatusOK once
// the whole move has been exhausted (at once, for a buffer that turned out
// to carry zero length) and StatusAgain if more segments remain.
func (e *Exec) RunSegment(bf *motion.MoveBuffer) (motion.Status, error) {
	if bf.Length <= motion.LengthEps {
		// A hold that decelerated exactly to the buffer's original
		// target leaves it to be re-run with ~zero length (spec.md
		// §4.11 "re-plans the remainder... with length reset"); let it
		// complete immediately rather than treat it as an error.
		return motion.StatusOK, nil
	}

	if !e.active || e.bf != bf {
		e.start(bf)
	}

	status, err := e.runSection()
	if status == motion.StatusEOF || status == motion.StatusOK {
		e.active = false
	}
	return status, err
}

// runSection dispatches to the current section's driver. A section that
// resolves instantly (zero length, folded away in start) tail-calls
// straight into the next one rather than costing the caller an extra
// loader tick to discover there was nothing to do.
func (e *Exec) runSection() (motion.Status, error) {
	switch e.sec {
	case sectionHead:
		return e.runHead()
	case sectionBody:
		return e.runBody()
	default:
		return e.runTail()
	}
}

// start seeds the runtime singleton for a freshly-arrived buffer (the
// one-time setup block at the top of the teacher's mp_exec_aline).
func (e *Exec) start(bf *motion.MoveBuffer) {
	e.active = true
	e.bf = bf
	e.unit = bf.Unit
	e.axisFlags = bf.AxisFlags
	e.target = bf.Target

	e.headLength, e.bodyLength, e.tailLength = bf.HeadLength, bf.BodyLength, bf.TailLength
	e.headTime, e.bodyTime, e.tailTime = bf.HeadTime, bf.BodyTime, bf.TailTime
	e.executedBodyLength, e.executedBodyTime = 0, 0

	minSegTime := e.minSegmentTime()

	// Fold any section shorter than one segment into the body; if the
	// body then ends up too short too, hand it to whichever ramp
	// survives (spec.md §4.5 "short section folding").
	if e.headTime > 0 && e.headTime < minSegTime {
		if bf.CruiseVelocity > 0 {
			e.bodyTime += e.headLength / bf.CruiseVelocity
		}
		e.bodyLength += e.headLength
		e.headLength, e.headTime = 0, 0
	}
	if e.tailTime > 0 && e.tailTime < minSegTime {
		if bf.CruiseVelocity > 0 {
			e.bodyTime += e.tailLength / bf.CruiseVelocity
		}
		e.bodyLength += e.tailLength
		e.tailLength, e.tailTime = 0, 0
	}
	if e.bodyTime > 0 && e.bodyTime < minSegTime {
		switch {
		case e.tailLength > 0 && e.headLength > 0:
			half := e.bodyLength / 2
			e.headLength += half
			e.tailLength += half
			if d := bf.EntryVelocity + bf.CruiseVelocity; d > 0 {
				e.headTime += 2 * half / d
			}
			if d := bf.CruiseVelocity + bf.ExitVelocity; d > 0 {
				e.tailTime += 2 * half / d
			}
			e.bodyLength = 0
		case e.tailLength > 0:
			if d := bf.CruiseVelocity + bf.ExitVelocity; d > 0 {
				e.tailTime += 2 * e.bodyLength / d
			}
			e.tailLength += e.bodyLength
			e.bodyLength = 0
		case e.headLength > 0:
			if d := bf.EntryVelocity + bf.CruiseVelocity; d > 0 {
				e.headTime += 2 * e.bodyLength / d
			}
			e.headLength += e.bodyLength
			e.bodyLength = 0
		default:
			motion.Panic(motion.FaultAssertion, "exec: move is all-body and still shorter than one segment")
		}
	}

	for a := 0; a < motion.Axes; a++ {
		e.waypoint[sectionHead][a] = e.position[a] + e.unit[a]*e.headLength
		e.waypoint[sectionBody][a] = e.position[a] + e.unit[a]*(e.headLength+e.bodyLength)
		e.waypoint[sectionTail][a] = e.position[a] + e.unit[a]*(e.headLength + e.bodyLength + e.tailLength)
	}

	e.sec = sectionHead
	e.secState = stateNew
}

func (e *Exec) minSegmentTime() float32 {
	ms := e.Settings.MinSegmentTimeMs
	if ms <= 0 {
		ms = motion.MinSegmentMs
	}
	return ms / 60000 // minutes, matching bf's HeadTime/BodyTime/TailTime unit
}

func (e *Exec) nomSegmentTime() float32 {
	ms := e.Settings.NomSegmentTimeMs
	if ms <= 0 {
		ms = motion.NomSegmentMs
	}
	return ms / 60000
}

// runHead drives the concave-then-convex acceleration ramp from
// EntryVelocity to CruiseVelocity (spec.md §4.6).
func (e *Exec) runHead() (motion.Status, error) {
	if e.secState == stateNew {
		if e.headLength <= 0 {
			e.sec = sectionBody
			e.secState = stateNew
			return e.runBody()
		}
		e.beginSection(e.headTime, e.bf.EntryVelocity, e.bf.CruiseVelocity, 0, 0)
	}
	return e.runRampState(sectionBody)
}

// runBody drives the constant-cruise-velocity section. It is still
// chopped into segments (rather than run as one long straight line) so a
// feedhold can interrupt it with bounded latency (spec.md §4.5).
func (e *Exec) runBody() (motion.Status, error) {
	if e.secState == stateNew {
		remaining := e.bodyLength - e.executedBodyLength
		if remaining <= 0 {
			e.sec = sectionTail
			e.secState = stateNew
			return e.runTail()
		}
		bodyTimeLeft := e.bodyTime - e.executedBodyTime
		nom := e.nomSegmentTime()
		if nom <= 0 {
			nom = motion.NomSegmentMs / 60000
		}
		e.segments = math32.Ceil(bodyTimeLeft / nom)
		if e.segments < 1 {
			e.segments = 1
		}
		e.segmentTime = bodyTimeLeft / e.segments
		e.segmentVelocity = e.bf.CruiseVelocity
		e.segmentCount = uint32(e.segments)
		if e.segmentTime < e.minSegmentTime() {
			motion.Panic(motion.FaultAssertion, "exec: body segment below minimum segment time")
		}
		e.executedBodyLength = e.bodyLength
		e.executedBodyTime = e.bodyTime
		e.secState = stateSecondHalf // body has no forward-diff curve, but reuses the last-segment waypoint logic
	}
	if e.secState == stateSecondHalf {
		status, err := e.runSegment()
		if err == nil && status == motion.StatusOK {
			e.sec = sectionBody
			e.secState = stateNew
			return e.runBody()
		}
		return motion.StatusAgain, err
	}
	return motion.StatusAgain, nil
}

// runTail drives the convex-then-concave deceleration ramp from
// CruiseVelocity to ExitVelocity (spec.md §4.6).
func (e *Exec) runTail() (motion.Status, error) {
	if e.secState == stateNew {
		// Once a move is committed to its tail the look-ahead passes
		// must leave it alone (spec.md §4.10/§4.11): a feedhold or a
		// late-arriving neighbor could otherwise rewrite a trapezoid
		// the stepper is already consuming.
		e.bf.Plannable = false
		if e.tailLength <= 0 {
			return motion.StatusOK, nil
		}
		e.beginSection(e.tailTime, e.bf.CruiseVelocity, e.bf.ExitVelocity, 0, 0)
	}
	return e.runRampState(0 /* unused: tail completion ends the move */)
}

// Active reports whether exec is mid-way through a buffer.
func (e *Exec) Active() bool { return e.active }

// CurrentBuffer returns the buffer exec is currently stepping, or nil.
func (e *Exec) CurrentBuffer() *motion.MoveBuffer { return e.bf }

// InTail reports whether exec has already committed to the tail section
// of its current buffer (spec.md §4.11 "if already in a tail don't
// decelerate, you already are").
func (e *Exec) InTail() bool { return e.active && e.sec == sectionTail }

// CurrentVelocity returns the instantaneous velocity of the segment about
// to run, which is segment_velocity plus one step of lookahead while in a
// head section (spec.md §4.11).
func (e *Exec) CurrentVelocity() float32 {
	v := e.segmentVelocity
	if e.sec == sectionHead {
		v += e.fd.d5
	}
	return v
}

// AvailableLength is the remaining Cartesian distance to the buffer's
// original target (spec.md §4.11 "get_axis_vector_length(target,
// position)").
func (e *Exec) AvailableLength() float32 {
	if e.bf == nil {
		return 0
	}
	var sq float32
	for a := 0; a < motion.Axes; a++ {
		d := e.bf.Target[a] - e.position[a]
		sq += d * d
	}
	return math32.Sqrt(sq)
}

// ReshapeTail rebuilds the in-flight move as a single tail-only ramp from
// cruiseVelocity down to exitVelocity over tailLength, discarding whatever
// head/body remained (spec.md §4.11 "current section is re-shaped in
// place"). The caller (motion/feedhold) is responsible for choosing
// exitVelocity and tailLength.
func (e *Exec) ReshapeTail(cruiseVelocity, exitVelocity, tailLength, tailTime float32) {
	e.bf.CruiseVelocity = cruiseVelocity
	e.bf.ExitVelocity = exitVelocity
	e.bf.HeadLength, e.bf.BodyLength, e.bf.TailLength = 0, 0, tailLength
	e.bf.TailTime = tailTime
	e.bf.Plannable = false

	e.headLength, e.bodyLength, e.tailLength = 0, 0, tailLength
	e.headTime, e.bodyTime, e.tailTime = 0, 0, tailTime
	for a := 0; a < motion.Axes; a++ {
		e.waypoint[sectionTail][a] = e.position[a] + e.unit[a]*tailLength
	}
	e.sec = sectionTail
	e.secState = stateNew
}

// Deactivate marks exec idle without touching position, so the next
// RunSegment call for any buffer (including the one just run) performs a
// fresh start (spec.md §4.11 case 5, "mr.move_state = MOVE_OFF").
func (e *Exec) Deactivate() { e.active = false }

// beginSection sets up the forward-diff table for one head/tail ramp from
// v0 to v1 over duration t, with boundary jerk j0, j1 (spec.md §4.6's
// typical endpoint configuration has both at 0; both callers pass 0).
func (e *Exec) beginSection(t, v0, v1, j0, j1 float32) {
	nom := e.nomSegmentTime()
	if nom <= 0 {
		nom = motion.NomSegmentMs / 60000
	}
	e.segments = math32.Ceil(t / nom)
	if e.segments < 1 {
		e.segments = 1
	}
	e.segmentTime = t / e.segments
	e.segmentCount = uint32(e.segments)

	if e.segmentCount == 1 {
		e.segmentVelocity = (v0 + v1) / 2
		e.fd = forwardDiffs{}
		e.secState = stateSecondHalf
	} else {
		e.fd, e.segmentVelocity = initForwardDiffs(v0, v1, j0, j1, t, e.segments)
		e.secState = stateFirstHalf
	}
	if e.segmentTime < e.minSegmentTime() {
		motion.Panic(motion.FaultAssertion, "exec: ramp segment below minimum segment time")
	}
}

// runRampState drives one head/tail ramp's FIRST_HALF/SECOND_HALF
// sub-machine. nextSection is where the ramp hands off once exhausted;
// for the tail this is ignored and StatusOK ends the move instead.
func (e *Exec) runRampState(nextSection section) (motion.Status, error) {
	if e.secState == stateFirstHalf {
		// The curve is sampled starting at its first segment's midpoint
		// (spec.md §4.6); the very first call just arms secondHalf.
		e.secState = stateSecondHalf
		return motion.StatusAgain, nil
	}
	if e.secState == stateSecondHalf {
		e.segmentVelocity = e.fd.step(e.segmentVelocity)
		status, err := e.runSegment()
		if err != nil {
			return motion.StatusAgain, err
		}
		if status == motion.StatusOK {
			if e.sec == sectionTail {
				return motion.StatusOK, nil
			}
			e.sec = nextSection
			e.secState = stateNew
			return motion.StatusAgain, nil
		}
	}
	return motion.StatusAgain, nil
}

// runSegment is the per-segment worker shared by all three sections (the
// teacher's _exec_aline_segment, spec.md §4.5 "bucket-brigade").
func (e *Exec) runSegment() (motion.Status, error) {
	e.segmentCount--

	if e.segmentCount == 0 && e.secState == stateSecondHalf && !e.HoldActive {
		e.target = e.waypoint[e.sec]
	} else {
		segLen := e.segmentVelocity * e.segmentTime
		for a := 0; a < motion.Axes; a++ {
			e.target[a] = e.position[a] + e.unit[a]*segLen
		}
	}

	for m := 0; m < motion.Motors; m++ {
		e.commandedSteps[m] = e.positionSteps[m]
		e.positionSteps[m] = e.targetSteps[m]
		var encoderSteps float32
		if e.HAL != nil && e.HAL.Encoder != nil {
			encoderSteps = float32(e.HAL.Encoder.Read(m))
		} else {
			encoderSteps = e.commandedSteps[m]
		}
		e.followingError[m] = encoderSteps - e.commandedSteps[m]
	}

	e.targetSteps = e.Kinematics.Inverse(e.target, e.StepsPerUnit)
	var travelSteps [motion.Motors]float32
	for m := 0; m < motion.Motors; m++ {
		travelSteps[m] = e.targetSteps[m] - e.positionSteps[m]
	}

	// The runtime controller only invokes exec while the prep slot is
	// owned by exec (spec.md §5 "owner flag"), so PrepLine should never
	// see it otherwise; treat that as a scheduling bug, not a retry.
	if _, err := e.Prep.PrepLine(travelSteps, e.segmentTime, e.DDAFrequency, e.SubstepScale, e.Polarity, e.bf.Kind); err != nil {
		motion.Panic(motion.FaultInternal, "exec: prep slot not owned by exec: %v", err)
	}

	e.position = e.target
	if e.segmentCount == 0 {
		return motion.StatusOK, nil
	}
	return motion.StatusAgain, nil
}
