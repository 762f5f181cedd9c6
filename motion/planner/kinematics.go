package planner

import (
	"github.com/chewxy/math32"

	"github.com/synthetos/g2motion/motion"
)

// This file implements the length<->velocity kinematics of spec.md §4.3,
// choosing the linear-snap (quintic-Bézier velocity) formulation over the
// constant-jerk/S-curve alternative spec.md leaves as an open
// implementation choice. See DESIGN.md "Open Question: jerk formulation"
// for the rationale; the formulas here are grounded directly on g2core's
// LINEAR_SNAP_MATH branch of plan_zoid.cpp.

// targetLength returns the length needed to change velocity from v0 to v1
// at the given jerk (plan_zoid.cpp mp_get_target_length, LINEAR_SNAP_MATH).
func targetLength(v0, v1, jerk, recipJerk float32) float32 {
	dv := math32.Abs(v1 - v0)
	return targetLengthConstant32 * math32.Sqrt(jerk*dv) * (v0 + v1) * recipJerk
}

const targetLengthConstant32 float32 = 1.201405707067378

// Closed-form coefficients for targetVelocity (cube-root solution of the
// quintic length/velocity relationship).
const (
	sqrt3            float32 = 1.732050807568877
	third            float32 = 0.333333333333333
	f3Sqrt3          float32 = 5.196152422706631
	f4ThirdsCbrt5    float32 = 2.279967928902263
	f1_15thTwoThird5 float32 = 0.194934515880858
)

// targetVelocity returns the velocity reachable, starting at v0, over
// length L at the given jerk (plan_zoid.cpp mp_get_target_velocity,
// LINEAR_SNAP_MATH). Closed form; no iteration needed.
func targetVelocity(v0, l, jerk float32) float32 {
	v0Sq := v0 * v0
	v0Cu := v0Sq * v0
	v0CuX40 := v0Cu * 40

	lSq := l * l
	lSqJSqrt3 := lSq * jerk * sqrt3
	lFourth := lSq * lSq
	jSq := jerk * jerk

	chunk1Cubed := 27*lSqJSqrt3 + v0CuX40 + f3Sqrt3*math32.Sqrt(2*v0CuX40*lSqJSqrt3+81*lFourth*jSq)
	chunk1 := math32.Cbrt(chunk1Cubed)

	return (f4ThirdsCbrt5*v0Sq)/chunk1 + f1_15thTwoThird5*chunk1 - third*v0
}

// TargetLength exposes targetLength to other packages that need the same
// jerk-limited length/velocity curve outside a trapezoid computation —
// currently motion/feedhold, to size the braking tail of a hold request.
func TargetLength(v0, v1, jerk, recipJerk float32) float32 {
	return targetLength(v0, v1, jerk, recipJerk)
}

// TargetVelocity exposes targetVelocity to motion/feedhold for the same
// reason as TargetLength.
func TargetVelocity(v0, l, jerk float32) float32 {
	return targetVelocity(v0, l, jerk)
}

// meetVelocity iterates (Newton-Raphson, bounded to 10 iterations, 2-unit
// convergence) on the midpoint velocity v1 such that
// targetLength(v0, v1) + targetLength(v2, v1) == L. Grounded on
// plan_zoid.cpp mp_get_meet_velocity.
func meetVelocity(v0, v2, l, jerk, recipJerk float32) float32 {
	hi := v0
	if v2 > hi {
		hi = v2
	}
	v1 := targetVelocity(hi, l/2, jerk)
	lastV1 := float32(0)

	for i := 0; i < 10 && math32.Abs(lastV1-v1) >= 2; i++ {
		lastV1 = v1

		sqrtJDv0 := math32.Sqrt(jerk * math32.Abs(v1-v0))
		sqrtJDv2 := math32.Sqrt(jerk * math32.Abs(v1-v2))

		lcHead := targetLengthConstant32 * sqrtJDv0 * (v0 + v1) * recipJerk
		lcTail := targetLengthConstant32 * sqrtJDv2 * (v2 + v1) * recipJerk

		lc := (lcHead + lcTail) - l
		if math32.Abs(lc) < 2 {
			break
		}

		ldHead := (meetVelocityConstant32 * (v0 - 3*v1)) / sqrtJDv0
		ldTail := (meetVelocityConstant32 * (v2 - 3*v1)) / sqrtJDv2
		ld := ldHead + ldTail

		v1 = v1 - lc/ld
	}
	return v1
}

const meetVelocityConstant32 float32 = 0.60070285354

// computeJerk derives the move's dominant-axis jerk (spec.md §4.1 step 6,
// C9): the axis that most tightly constrains jerk for this unit vector,
// scaled into engineering units by JerkMultiplier.
func computeJerk(unit [motion.Axes]float32, axisMaxJerk [motion.Axes]float32) (jerk float32, axis int) {
	best := float32(math32.MaxFloat32)
	axis = 0
	for i := 0; i < motion.Axes; i++ {
		u := math32.Abs(unit[i])
		if u < 1e-9 {
			continue
		}
		candidate := axisMaxJerk[i] / u
		if candidate < best {
			best = candidate
			axis = i
		}
	}
	jerk = best * motion.JerkMultiplier
	return jerk, axis
}

// computeMoveTime derives the requested move time and the rate-limit-only
// minimum move time (spec.md §4.1 step 3, C9).
func computeMoveTime(axisLength [motion.Axes]float32, gc motion.GCodeState, velocityMax [motion.Axes]float32) (requested, minimum float32) {
	var xyzSq float32
	for i := 0; i < 3; i++ {
		xyzSq += axisLength[i] * axisLength[i]
	}
	xyzLength := math32.Sqrt(xyzSq)

	var rotarySq float32
	for i := 3; i < motion.Axes; i++ {
		rotarySq += axisLength[i] * axisLength[i]
	}
	rotaryLength := math32.Sqrt(rotarySq)

	if gc.InverseTimeMode && gc.Feedrate > 0 {
		requested = 1 / gc.Feedrate
	} else if xyzLength > 0 && gc.Feedrate > 0 {
		requested = xyzLength / gc.Feedrate
	} else if rotaryLength > 0 && gc.Feedrate > 0 {
		requested = rotaryLength / gc.Feedrate
	}

	minimum = 0
	for i := 0; i < motion.Axes; i++ {
		if velocityMax[i] <= 0 {
			continue
		}
		t := math32.Abs(axisLength[i]) / velocityMax[i]
		if t > minimum {
			minimum = t
		}
		if t > requested {
			requested = t
		}
	}
	return requested, minimum
}
