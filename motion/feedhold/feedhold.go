// Package feedhold implements the feedhold state machine (C11, spec.md
// §4.11): decelerate the in-flight move to zero within the travel that
// remains, hold, and resume by re-planning whatever is left in the queue.
// Grounded directly on TinyG2's hold-state handling inside mp_exec_aline
// (plan_exec.cpp), adapted to this port's per-call Exec/Planner split.
package feedhold

import (
	"github.com/rs/zerolog"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/exec"
	"github.com/synthetos/g2motion/motion/planner"
)

// State is the hold state machine's position (spec.md §4.11): OFF -> SYNC
// -> DECEL_CONTINUE|DECEL_TO_ZERO -> DECEL_END -> PENDING -> HOLD -> OFF.
type State int

const (
	StateOff State = iota
	StateSync
	StateDecelToZero
	StateDecelContinue
	StateDecelEnd
	StatePending
	StateHold
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateSync:
		return "SYNC"
	case StateDecelToZero:
		return "DECEL_TO_ZERO"
	case StateDecelContinue:
		return "DECEL_CONTINUE"
	case StateDecelEnd:
		return "DECEL_END"
	case StatePending:
		return "PENDING"
	case StateHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// Controller drives the hold state machine across one Exec/Planner pair.
// The runtime controller calls BeforeSegment/AfterSegment once per
// MEDIUM-priority tick, bracketing its call into Exec.RunSegment.
type Controller struct {
	Planner *planner.Planner
	Exec    *exec.Exec
	Log     zerolog.Logger

	// RuntimeIdle reports whether the DDA and loader have fully drained
	// (spec.md §4.11 "wait for the runtime-idle predicate"). The runtime
	// controller owns that judgement; feedhold only consults it.
	RuntimeIdle func() bool

	state State
}

// New creates a hold controller over the given planner and exec stages.
func New(p *planner.Planner, e *exec.Exec, runtimeIdle func() bool, log zerolog.Logger) *Controller {
	return &Controller{Planner: p, Exec: e, RuntimeIdle: runtimeIdle, Log: log, state: StateOff}
}

// State returns the controller's current hold state.
func (c *Controller) State() State { return c.state }

// RequestHold arms a feedhold (spec.md §6 request_feedhold()); a no-op if
// one is already in progress.
func (c *Controller) RequestHold() {
	if c.state != StateOff {
		return
	}
	c.state = StateSync
	c.Log.Debug().Msg("feedhold: requested")
}

// RequestResume clears a completed hold and re-plans the remainder of the
// queue (spec.md §4.11 "Resume"). A no-op unless fully HOLD.
func (c *Controller) RequestResume() {
	if c.state != StateHold {
		return
	}
	c.state = StateOff
	c.Planner.Replan()
	c.Log.Debug().Msg("feedhold: resumed")
}

// BeforeSegment runs the hold machine's pre-dispatch housekeeping for the
// buffer the runtime is about to hand to Exec.RunSegment. It returns true
// when the caller must skip calling Exec entirely this tick (PENDING,
// DECEL_END and HOLD all intercept motion before it reaches exec, per
// spec.md §4.11).
func (c *Controller) BeforeSegment(bf *motion.MoveBuffer) bool {
	switch c.state {
	case StateOff:
		return false

	case StateHold:
		return true // "VERY IMPORTANT to exit as a NOOP. No more movement."

	case StatePending:
		if c.RuntimeIdle == nil || c.RuntimeIdle() {
			c.state = StateHold
			c.Log.Debug().Msg("feedhold: steppers idle, entering HOLD")
		}
		return true

	case StateDecelEnd:
		c.finishDecel(bf)
		c.state = StatePending
		return true

	case StateSync:
		c.reshape(bf)
		return false

	case StateDecelContinue:
		if !c.Exec.Active() || c.Exec.CurrentBuffer() != bf {
			// The braking move that didn't fit finished; re-arm against
			// the buffer that picks up the remaining deceleration.
			c.reshape(bf)
		}
		return false

	default: // StateDecelToZero: already mid-deceleration, let it run
		return false
	}
}

// AfterSegment observes the status Exec.RunSegment returned for this tick
// and advances DECEL_TO_ZERO -> DECEL_END once the braking ramp bottoms
// out at zero (spec.md §4.11 case 5).
func (c *Controller) AfterSegment(status motion.Status) {
	if c.state == StateDecelToZero && status == motion.StatusOK {
		c.state = StateDecelEnd
	}
}

// reshape re-derives the braking tail for bf, the buffer currently (or
// about to be) running, and picks DECEL_TO_ZERO vs. DECEL_CONTINUE
// (spec.md §4.11 cases 1a/1b/1c, 2, 4).
func (c *Controller) reshape(bf *motion.MoveBuffer) {
	if c.Exec.InTail() {
		// Already decelerating: ride it out, just confirm where it ends.
		if bf.ExitVelocity <= motion.VelocityEq {
			c.state = StateDecelToZero
		} else {
			c.state = StateDecelContinue
		}
		return
	}

	cruise := c.Exec.CurrentVelocity()
	available := c.Exec.AvailableLength()
	brakingLength := planner.TargetLength(0, cruise, bf.Jerk, bf.RecipJerk)

	var exitVelocity, tailLength float32
	switch {
	case available-brakingLength < motion.LengthEps && available-brakingLength > -motion.LengthEps:
		c.state = StateDecelToZero
		exitVelocity = 0
		tailLength = available
	case available < brakingLength:
		c.state = StateDecelContinue
		tailLength = available
		exitVelocity = cruise - planner.TargetVelocity(0, tailLength, bf.Jerk)
		if exitVelocity < 0 {
			exitVelocity = 0
		}
	default:
		c.state = StateDecelToZero
		exitVelocity = 0
		tailLength = brakingLength
	}

	var tailTime float32
	if d := exitVelocity + cruise; d > 0 {
		tailTime = 2 * tailLength / d
	}

	c.Exec.ReshapeTail(cruise, exitVelocity, tailLength, tailTime)
	c.Log.Debug().
		Str("state", c.state.String()).
		Float32("cruise", cruise).
		Float32("exit_velocity", exitVelocity).
		Float32("tail_length", tailLength).
		Msg("feedhold: reshaped running move")
}

// finishDecel resets bf to its actual remaining length now that it has
// stopped, re-queues it for a fresh run, and forces a full re-plan of
// everything behind it (spec.md §4.11 case 5).
func (c *Controller) finishDecel(bf *motion.MoveBuffer) {
	c.Exec.Deactivate()
	bf.Length = c.Exec.AvailableLength()
	bf.Plannable = true
	// The machine is actually at rest: the forward pass must not hand this
	// buffer its original junction entry velocity, or the resumed move
	// would open with a discontinuous jump from 0 to EntryVmax.
	bf.EntryVmax = 0
	c.Planner.Replan()
}
