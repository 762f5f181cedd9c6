package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synthetos/g2motion/motion"
)

func TestTargetLengthTargetVelocityRoundTrip(t *testing.T) {
	const jerk float32 = 50_000_000
	recipJerk := 1 / jerk

	tests := []struct {
		v0, v1 float32
	}{
		{0, 1000},
		{500, 1500},
		{1000, 0},
	}

	for _, tt := range tests {
		l := targetLength(tt.v0, tt.v1, jerk, recipJerk)
		assert.Greater(t, l, float32(0))

		// targetVelocity solves for the faster end of a ramp and the length
		// is the same in either direction, so a deceleration is recovered
		// from its slow end.
		from, to := tt.v0, tt.v1
		if to < from {
			from, to = to, from
		}
		v := targetVelocity(from, l, jerk)
		assert.InDelta(t, to, v, 5, "targetVelocity should recover the velocity that produced this length")
	}
}

func TestMeetVelocityConverges(t *testing.T) {
	const jerk float32 = 50_000_000
	recipJerk := 1 / jerk

	v1 := meetVelocity(0, 0, 100, jerk, recipJerk)
	assert.Greater(t, v1, float32(0))

	head := targetLength(0, v1, jerk, recipJerk)
	tail := targetLength(0, v1, jerk, recipJerk)
	assert.InDelta(t, 100, head+tail, 4, "meetVelocity should balance head+tail length against the target")
}

func TestComputeJerkPicksTightestAxis(t *testing.T) {
	unit := [motion.Axes]float32{0.6, 0.8, 0, 0, 0, 0}
	var axisMaxJerk [motion.Axes]float32
	axisMaxJerk[0] = 10 // tight on X: 10/0.6 = 16.67
	axisMaxJerk[1] = 100 // loose on Y: 100/0.8 = 125

	jerk, axis := computeJerk(unit, axisMaxJerk)
	assert.Equal(t, 0, axis)
	assert.InDelta(t, float64(10.0/0.6*motion.JerkMultiplier), float64(jerk), 1)
}

func TestComputeMoveTimeInverseTimeMode(t *testing.T) {
	gc := motion.GCodeState{InverseTimeMode: true, Feedrate: 2}
	var axisLength [motion.Axes]float32
	axisLength[0] = 10
	var vmax [motion.Axes]float32
	vmax[0] = 1000

	requested, _ := computeMoveTime(axisLength, gc, vmax)
	assert.Equal(t, float32(0.5), requested)
}

func TestComputeMoveTimeRateLimited(t *testing.T) {
	gc := motion.GCodeState{Feedrate: 100000}
	var axisLength [motion.Axes]float32
	axisLength[0] = 10
	var vmax [motion.Axes]float32
	vmax[0] = 100 // so the axis rate limit dominates the requested feedrate time

	requested, minimum := computeMoveTime(axisLength, gc, vmax)
	assert.InDelta(t, float64(minimum), float64(requested), 1e-6)
	assert.InDelta(t, 0.1, requested, 1e-6)
}

func TestTargetLengthConstantMatchesLinearSnap(t *testing.T) {
	// Regression guard for the jerk-formulation Open Question (DESIGN.md):
	// this constant is the fingerprint of the LINEAR_SNAP_MATH branch.
	assert.Equal(t, float32(1.201405707067378), targetLengthConstant32)
}
