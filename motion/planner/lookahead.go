package planner

import (
	"time"

	"github.com/synthetos/g2motion/motion"
)

// plannerCriticalTime is the plannable-time-left threshold (spec.md §4.10)
// below which the planner prefers pessimistic (force-to-zero) planning so
// the machine never finds itself committed to a cruise it cannot brake
// out of in time.
const plannerCriticalTime = 20 * time.Millisecond

// onArrival is called once a buffer has been committed to the ring. It
// advances IDLE->STARTUP and re-runs the look-ahead passes.
func (p *Planner) onArrival() {
	if p.state == StateIdle {
		p.state = StateStartup
	}
	p.replan()
}

// Tick re-evaluates the planner's state machine against wall-clock time,
// independent of new arrivals (spec.md §4.10's "new-block arrival
// timeout"). The main loop should call this periodically.
func (p *Planner) Tick(now time.Time) {
	p.now = func() time.Time { return now }
	if p.Ring.Count() == 0 {
		p.state = StateIdle
		return
	}
	timeout := time.Duration(p.Settings.BlockTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = motion.BlockTimeoutMs * time.Millisecond
	}
	if now.Sub(p.lastArrival) >= timeout {
		if p.state == StateStartup || p.state == StateOptimistic {
			p.Log.Debug().Msg("planner: block timeout, forcing pessimistic replan")
			p.state = StatePessimistic
		}
	}
	p.replan()
}

// Replan forces every buffer from the runtime cursor forward to be
// reconsidered by the look-ahead passes, then immediately runs them
// (spec.md §4.11 "resume... re-plans the remainder of the queue").
func (p *Planner) Replan() {
	bf := p.Ring.Runtime()
	start := bf
	for bf != nil && bf.State != motion.BufferEmpty {
		if bf.Kind == motion.MoveALine {
			bf.Replannable = true
			bf.Plannable = true
			bf.Locked = false
		}
		next := bf.Next()
		if next == start {
			break
		}
		bf = next
	}
	p.state = StatePessimistic
	p.replan()
}

// replan runs the backward (braking-velocity) and forward
// (entry/cruise/exit assignment + trapezoid) passes (spec.md §4.10, C6).
func (p *Planner) replan() {
	if p.Ring.Count() == 0 {
		p.state = StateIdle
		return
	}

	newest := p.Ring.Newest()
	horizonEnd := newest
	pessimisticTerminal := p.state == StatePessimistic

	if p.state == StateStartup {
		if p.Ring.Full() || p.timedOut() {
			p.state = StatePessimistic
			pessimisticTerminal = true
		} else {
			p.state = StateOptimistic
		}
	}

	if p.state == StateOptimistic {
		// Leave the newest buffer unplanned; wait for more to arrive or
		// for the timeout to force it through.
		if prev := newest.Prev(); prev != nil && prev.State != motion.BufferEmpty {
			horizonEnd = prev
		} else {
			return // only one buffer queued and we're optimistic: nothing to plan yet
		}
	}

	if p.remainingPlannableTime(horizonEnd) < plannerCriticalTime {
		p.state = StatePessimistic
		pessimisticTerminal = true
	}

	p.backwardPass(horizonEnd)
	p.forwardPass(horizonEnd, pessimisticTerminal)
}

func (p *Planner) timedOut() bool {
	timeout := time.Duration(p.Settings.BlockTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = motion.BlockTimeoutMs * time.Millisecond
	}
	return p.now().Sub(p.lastArrival) >= timeout
}

// remainingPlannableTime sums the already-assigned section times of every
// committed buffer from the runtime cursor through horizonEnd.
func (p *Planner) remainingPlannableTime(horizonEnd *motion.MoveBuffer) time.Duration {
	var total float32 // minutes, matching the firmware's time unit
	bf := p.Ring.Runtime()
	for {
		total += bf.HeadTime + bf.BodyTime + bf.TailTime
		if bf == horizonEnd || bf.Next() == nil {
			break
		}
		bf = bf.Next()
		if bf.State == motion.BufferEmpty {
			break
		}
	}
	return time.Duration(total * float32(time.Minute))
}

// backwardPass walks from horizonEnd toward the runtime cursor, setting
// BrakingVelocity on every replannable, unlocked buffer (spec.md §4.10
// backward pass).
func (p *Planner) backwardPass(horizonEnd *motion.MoveBuffer) {
	bf := horizonEnd
	for {
		if bf.Kind == motion.MoveALine && bf.Replannable && !bf.Locked {
			nextEntryVmax, nextBraking := p.downstreamOf(bf)
			bf.BrakingVelocity = minf(nextEntryVmax, nextBraking) + bf.DeltaVmax
		}
		if bf == p.Ring.Runtime() {
			return
		}
		bf = bf.Prev()
		if bf == nil || bf.State == motion.BufferEmpty {
			return
		}
	}
}

// downstreamOf returns the EntryVmax/BrakingVelocity the backward pass
// should treat as bf's successor: the real successor's values if one is
// committed, or zero if bf is the last buffer in the ring.
func (p *Planner) downstreamOf(bf *motion.MoveBuffer) (entryVmax, braking float32) {
	nx := bf.Next()
	if nx == nil || nx.State == motion.BufferEmpty {
		return 0, 0
	}
	return nx.EntryVmax, nx.BrakingVelocity
}

// forwardPass walks from the first replannable buffer through horizonEnd,
// assigning entry/cruise/exit velocities and partitioning each buffer's
// length (spec.md §4.10 forward pass).
func (p *Planner) forwardPass(horizonEnd *motion.MoveBuffer, pessimisticTerminal bool) {
	start := p.firstReplannable(horizonEnd)
	if start == nil {
		return
	}

	minSegTime := float32(p.Settings.MinSegmentTimeMs) / 60000
	nomSegTime := float32(p.Settings.NomSegmentTimeMs) / 60000

	bf := start
	for {
		if bf.Kind != motion.MoveALine {
			bf.EntryVelocity, bf.CruiseVelocity, bf.ExitVelocity = 0, 0, 0
			bf.State = motion.BufferPlanned
		} else if !bf.Plannable {
			// Already being stepped by exec (e.g. mid-tail, or reshaped
			// by a feedhold): the forward pass must not rewrite a
			// trapezoid the stepper is actively consuming.
		} else {
			prev := bf.Prev()
			if prev != nil && prev.State == motion.BufferPlanned || (prev != nil && prev.State == motion.BufferRunning) {
				bf.EntryVelocity = prev.ExitVelocity
			} else {
				bf.EntryVelocity = bf.EntryVmax
			}
			bf.CruiseVelocity = bf.CruiseVmax

			if bf == horizonEnd && pessimisticTerminal {
				bf.ExitVelocity = 0
			} else {
				nextEntryVmax, nextBraking := p.downstreamOf(bf)
				bf.ExitVelocity = minf4(
					bf.ExitVmax,
					nextEntryVmax,
					nextBraking,
					bf.EntryVelocity+bf.DeltaVmax,
				)
			}

			trapezoid(bf, minSegTime, nomSegTime)

			if bf.ExitVelocity >= bf.ExitVmax-motion.VelocityEq ||
				bf.ExitVelocity >= bf.EntryVelocity+bf.DeltaVmax-motion.VelocityEq {
				if prev == nil || !prev.Replannable {
					bf.Replannable = false
				}
			}
			bf.State = motion.BufferPlanned
		}

		if bf == horizonEnd {
			return
		}
		bf = bf.Next()
		if bf == nil || bf.State == motion.BufferEmpty {
			return
		}
	}
}

// firstReplannable finds the earliest buffer, scanning from horizonEnd
// back to the runtime cursor, that starts the still-open replanning
// range: the first buffer (in forward order) that is either the runtime
// buffer itself or follows a Locked/non-replannable buffer.
func (p *Planner) firstReplannable(horizonEnd *motion.MoveBuffer) *motion.MoveBuffer {
	bf := horizonEnd
	var candidate *motion.MoveBuffer
	for {
		if bf.Kind == motion.MoveALine && (!bf.Replannable || bf.Locked) && bf != p.Ring.Runtime() {
			return candidate
		}
		candidate = bf
		if bf == p.Ring.Runtime() {
			return candidate
		}
		bf = bf.Prev()
		if bf == nil || bf.State == motion.BufferEmpty {
			return candidate
		}
	}
}

func minf4(a, b, c, d float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	if d < m {
		m = d
	}
	return m
}
