// Package dwell implements the dwell generator (C12, spec.md §4.12):
// dwell(seconds) reserves a buffer whose Kind is motion.MoveDwell and
// whose Runner is a Runner from this package. No step pins are touched;
// the buffer simply occupies the ring for MoveTime seconds, holding its
// position in program order the same way an ALine move would, so that
// G4 interacts correctly with look-ahead and feedhold instead of
// bypassing the ring entirely.
package dwell

import (
	"time"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/hal"
)

// Runner drives one motion.MoveBuffer of Kind MoveDwell (spec.md §4.12).
// It arms the HAL's dwell timer once and then polls a wall-clock deadline
// on every subsequent MEDIUM-priority tick; there is no real ISR to wait
// on in this Go port, so the single-shot timer is armed for observability
// (a real board would gate on its interrupt instead) while the actual
// completion test is the deadline.
type Runner struct {
	HAL *hal.HAL

	// Now returns the current time. Defaults to time.Now; tests inject a
	// fake clock to make dwell completion deterministic.
	Now func() time.Time

	armed    bool
	deadline time.Time
}

// New creates a dwell runner over the given HAL.
func New(h *hal.HAL) *Runner {
	return &Runner{HAL: h, Now: time.Now}
}

// RunSegment advances bf's dwell by one tick (spec.md §4.12). The first
// call arms the timer and returns StatusAgain; later calls return
// StatusAgain until the deadline passes, then StatusOK.
func (r *Runner) RunSegment(bf *motion.MoveBuffer) (motion.Status, error) {
	if bf.Kind != motion.MoveDwell {
		return motion.StatusNoop, motion.ErrWrongMoveType
	}

	now := r.now()

	if !r.armed {
		if bf.MoveTime <= 0 {
			return motion.StatusOK, nil
		}
		period := secondsToNanoseconds(bf.MoveTime)
		if r.HAL != nil && r.HAL.Timer != nil {
			r.HAL.Timer.SetPeriodAndEnable(hal.TimerDwell, period)
		}
		r.deadline = now.Add(time.Duration(float64(bf.MoveTime) * float64(time.Second)))
		r.armed = true
		return motion.StatusAgain, nil
	}

	if now.Before(r.deadline) {
		return motion.StatusAgain, nil
	}

	if r.HAL != nil && r.HAL.Timer != nil {
		r.HAL.Timer.Disable(hal.TimerDwell)
	}
	r.armed = false
	return motion.StatusOK, nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func secondsToNanoseconds(seconds float32) uint32 {
	return uint32(seconds * 1e9)
}
