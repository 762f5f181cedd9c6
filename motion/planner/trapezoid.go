package planner

import (
	"github.com/chewxy/math32"

	"github.com/synthetos/g2motion/motion"
)

// minRampLength is the floor for the head and tail partitions below
// which the corresponding ramp is deemed not worth keeping and is folded
// away (plan_zoid.cpp's MIN_HEAD_LENGTH / MIN_TAIL_LENGTH). Expressed here
// as a function of the minimum segment time, since the minimum
// representable ramp is one segment long.
func minRampLength(minSegmentTime, velocity float32) float32 {
	return minSegmentTime * velocity
}

// trapezoid partitions one buffer's length into head/body/tail given its
// already-assigned entry/cruise/exit velocities and jerk (spec.md §4.4,
// C5). It never modifies bf.Length.
func trapezoid(bf *motion.MoveBuffer, minSegmentTime, nomSegmentTime float32) {
	if bf.ExitVelocity > bf.CruiseVelocity {
		bf.ExitVelocity = bf.CruiseVelocity
	}

	minSegmentMargin := minSegmentTime * motion.MinSegmentTimeMarginFactor
	denom := bf.EntryVelocity + maxf(bf.CruiseVelocity, bf.ExitVelocity)
	var naiveMoveTime float32
	if denom > 0 {
		naiveMoveTime = bf.Length / denom // T/2, reduced equation
	}

	// Too-short-move fallback: deliberately violates jerk to preserve
	// position (spec.md §4.4 step 5 / §9 design note).
	if naiveMoveTime < minSegmentMargin/2 {
		collapseToBody(bf, minSegmentMargin)
		return
	}
	if naiveMoveTime <= nomSegmentTime/2 {
		collapseToBody(bf, nomSegmentTime)
		return
	}

	bf.HeadLength, bf.TailLength, bf.BodyLength = 0, 0, 0

	if (bf.CruiseVelocity-bf.EntryVelocity) < motion.VelocityEq &&
		(bf.CruiseVelocity-bf.ExitVelocity) < motion.VelocityEq {
		bf.BodyLength = bf.Length
		computeSectionTimes(bf)
		return
	}

	minHead := minRampLength(minSegmentTime, bf.EntryVelocity)
	minTail := minRampLength(minSegmentTime, bf.ExitVelocity)

	if (bf.CruiseVelocity - bf.EntryVelocity) > (bf.CruiseVelocity - bf.ExitVelocity) {
		bf.HeadLength = targetLength(bf.EntryVelocity, bf.CruiseVelocity, bf.Jerk, bf.RecipJerk)
		if bf.HeadLength < minHead {
			bf.HeadLength, bf.TailLength = 0, 0
		} else {
			bf.TailLength = targetLength(bf.ExitVelocity, bf.CruiseVelocity, bf.Jerk, bf.RecipJerk)
			if bf.TailLength < minTail {
				bf.TailLength = 0
			}
		}
	} else {
		bf.TailLength = targetLength(bf.ExitVelocity, bf.CruiseVelocity, bf.Jerk, bf.RecipJerk)
		if bf.TailLength < minTail {
			bf.TailLength, bf.HeadLength = 0, 0
		} else {
			bf.HeadLength = targetLength(bf.EntryVelocity, bf.CruiseVelocity, bf.Jerk, bf.RecipJerk)
			if bf.HeadLength < minHead {
				bf.HeadLength = 0
			}
		}
	}

	if bf.Length < (bf.HeadLength + bf.TailLength) {
		rateLimited(bf, minSegmentTime)
		computeSectionTimes(bf)
		return
	}

	bf.BodyLength = bf.Length - bf.HeadLength - bf.TailLength
	computeSectionTimes(bf)
}

// collapseToBody handles the "block too short to even ramp" case: run the
// whole move as a single body segment at a limited, averaged velocity.
func collapseToBody(bf *motion.MoveBuffer, segmentTime float32) {
	bf.CruiseVelocity = bf.Length / segmentTime
	bf.CruiseVelocity = minf3(bf.CruiseVelocity, bf.CruiseVmax, bf.EntryVelocity+bf.DeltaVmax)
	bf.ExitVelocity = bf.CruiseVelocity
	bf.HeadLength, bf.TailLength = 0, 0
	bf.BodyLength = bf.Length
	computeSectionTimes(bf)
}

// rateLimited handles the HT / HT' cases where head+tail exceed the
// buffer's length: the cruise phase collapses entirely and the move is
// rate-limited by how fast it can accelerate then decelerate.
func rateLimited(bf *motion.MoveBuffer, minSegmentTime float32) {
	if math32.Abs(bf.EntryVelocity-bf.ExitVelocity) < motion.VelocityEq {
		// Symmetric case.
		bf.HeadLength = bf.Length / 2
		bf.TailLength = bf.HeadLength
		bf.CruiseVelocity = targetVelocity(bf.EntryVelocity, bf.HeadLength, bf.Jerk)

		minHead := minRampLength(minSegmentTime, bf.EntryVelocity)
		if bf.HeadLength < minHead {
			bf.BodyLength = bf.Length
			bf.HeadLength, bf.TailLength = 0, 0
			bf.CruiseVelocity = (bf.EntryVelocity + bf.CruiseVelocity) / 2
			bf.ExitVelocity = bf.CruiseVelocity
		}
		return
	}

	// Asymmetric case: solve for the meeting velocity.
	bf.CruiseVelocity = meetVelocity(bf.EntryVelocity, bf.ExitVelocity, bf.Length, bf.Jerk, bf.RecipJerk)
	bf.HeadLength = targetLength(bf.EntryVelocity, bf.CruiseVelocity, bf.Jerk, bf.RecipJerk)
	if bf.HeadLength > bf.Length {
		bf.HeadLength = bf.Length
	}
	bf.TailLength = bf.Length - bf.HeadLength

	// plan_zoid.cpp step 5: a head or tail that falls below its floor is
	// folded into the other ramp entirely rather than left sub-minimum.
	minHead := minRampLength(minSegmentTime, bf.EntryVelocity)
	minTail := minRampLength(minSegmentTime, bf.ExitVelocity)
	switch {
	case bf.HeadLength < minHead:
		bf.HeadLength, bf.TailLength = 0, bf.Length
	case bf.TailLength < minTail:
		bf.HeadLength, bf.TailLength = bf.Length, 0
	}
}

// computeSectionTimes fills Head/Body/TailTime from the trapezoid area
// formula T = 2L/(v0+v1) per section (spec.md §4.4 step 6).
func computeSectionTimes(bf *motion.MoveBuffer) {
	bf.HeadTime = sectionTime(bf.HeadLength, bf.EntryVelocity, bf.CruiseVelocity)
	bf.BodyTime = sectionTime(bf.BodyLength, bf.CruiseVelocity, bf.CruiseVelocity)
	bf.TailTime = sectionTime(bf.TailLength, bf.CruiseVelocity, bf.ExitVelocity)
}

func sectionTime(length, v0, v1 float32) float32 {
	if length <= 0 {
		return 0
	}
	sum := v0 + v1
	if sum <= 0 {
		return 0
	}
	return 2 * length / sum
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
