// Package stepper implements the DDA step generator (C1), the segment
// loader (C2) and the exec<->load handoff ("prep_line"), spec.md
// §4.7-§4.9. The DDA path is pure integer arithmetic by design (spec.md
// §9 "Floating-point in ISRs"); everything upstream of prep_line is
// float32.
package stepper

import (
	"math"
	"sync/atomic"

	"github.com/synthetos/g2motion/motion"
)

// owner values for the prep slot's single synchronization flag (spec.md
// §5, §9 "Interrupt-shared state without a lock"). Writers (exec, MEDIUM
// priority) publish ownerLoader last; readers (load, between MEDIUM and
// HIGH) check for it first. In Go this is modeled with atomic.Int32
// rather than hardware acquire/release barriers, which is the idiomatic
// equivalent on a cache-coherent multicore host.
const (
	ownerExec int32 = iota
	ownerLoader
)

// PrepSlot is the single-producer/single-consumer handoff from exec to
// load (spec.md §3 "Prep slot"). Exactly one of exec or load may touch
// its fields at a time; owner is what makes that true.
type PrepSlot struct {
	owner atomic.Int32

	Steps               [motion.Motors]uint32
	Dir                 [motion.Motors]bool
	TimerTicks          uint32
	TimerTicksXSubsteps uint32
	TimerPeriod         uint32
	MoveType            motion.MoveType
	CounterReset        bool

	prevTicks uint32
}

// counterResetFactor is the anti-stall heuristic threshold (spec.md §4.9,
// §9 "tuning constants, not invariants"): if consecutive segments' tick
// counts differ by more than this factor, the loader re-seeds the DDA
// counter mid-flight rather than let a sudden velocity change stall a
// motor's fractional accumulator for a full segment.
const counterResetFactor = 4

// ownedByExec reports whether exec currently holds the slot.
func (s *PrepSlot) ownedByExec() bool { return s.owner.Load() == ownerExec }

// ownedByLoader reports whether the loader currently holds the slot.
func (s *PrepSlot) ownedByLoader() bool { return s.owner.Load() == ownerLoader }

// releaseToExec hands the slot back to exec once the loader has copied
// its contents into the DDA run context.
func (s *PrepSlot) releaseToExec() { s.owner.Store(ownerExec) }

// PrepLine fills the prep slot from one segment's travel and hands
// ownership to the loader (spec.md §4.9). travelSteps may be
// fractional and signed; segmentTime is in minutes, matching the
// firmware's internal time unit.
func (s *PrepSlot) PrepLine(
	travelSteps [motion.Motors]float32,
	segmentTime float32,
	ddaFrequency float32,
	substepScale float32,
	polarity [motion.Motors]bool,
	moveType motion.MoveType,
) (motion.Status, error) {
	if !s.ownedByExec() {
		return motion.StatusAgain, motion.ErrAgain
	}
	if segmentTime <= 0 || math.IsNaN(float64(segmentTime)) || math.IsInf(float64(segmentTime), 0) {
		return motion.StatusNoop, motion.ErrZeroLengthMove
	}

	for m := 0; m < motion.Motors; m++ {
		dir := travelSteps[m] < 0
		s.Dir[m] = dir != polarity[m]
		abs := travelSteps[m]
		if abs < 0 {
			abs = -abs
		}
		s.Steps[m] = uint32(abs * substepScale)
	}

	s.TimerPeriod = frequencyToPeriod(ddaFrequency)
	ticks := uint32(segmentTime * 60 * ddaFrequency) // segmentTime is minutes; DDA runs in seconds
	s.TimerTicks = ticks
	s.TimerTicksXSubsteps = uint32(float32(ticks) * substepScale)
	s.MoveType = moveType

	s.CounterReset = s.prevTicks > 0 && (ticks > s.prevTicks*counterResetFactor || s.prevTicks > ticks*counterResetFactor)
	s.prevTicks = ticks

	s.owner.Store(ownerLoader)
	return motion.StatusOK, nil
}

func frequencyToPeriod(freqHz float32) uint32 {
	if freqHz <= 0 {
		return 0
	}
	return uint32(1.0 / freqHz * 1e9) // nanoseconds, the HAL timer's native unit
}
