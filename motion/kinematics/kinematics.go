// Package kinematics translates between the planner's Cartesian space and
// per-motor step space. spec.md §4.5 hard-codes this as "translate target
// through inverse kinematics"; g2core's kinematics.cpp instead dispatches
// through a configurable model, and so does this package — grounded also
// on the teacher's own pkg/robot/kinematics family (DH / planar / wheel
// drive kinematics), which uses the same Forward/Inverse interface shape
// for a different rig.
package kinematics

import "github.com/synthetos/g2motion/motion"

// Model converts between Cartesian axis positions and motor step
// positions. Inverse is on the hot path (once per segment, inside exec);
// Forward exists for reporting and for kinematic configurations more
// elaborate than the identity mapping.
type Model interface {
	// Inverse converts a Cartesian target (mm) to motor step counts,
	// given each motor's steps-per-mm scale.
	Inverse(target [motion.Axes]float32, stepsPerUnit [motion.Motors]float32) [motion.Motors]float32
	// Forward converts motor step counts back to a Cartesian position.
	Forward(steps [motion.Motors]float32, stepsPerUnit [motion.Motors]float32) [motion.Axes]float32
}

// Cartesian is the identity kinematics: motor i tracks axis i directly.
// This is the default rig for a 1:1 XYZABC gantry machine.
type Cartesian struct{}

func (Cartesian) Inverse(target [motion.Axes]float32, stepsPerUnit [motion.Motors]float32) [motion.Motors]float32 {
	var steps [motion.Motors]float32
	n := motion.Motors
	if motion.Axes < n {
		n = motion.Axes
	}
	for i := 0; i < n; i++ {
		steps[i] = target[i] * stepsPerUnit[i]
	}
	return steps
}

func (Cartesian) Forward(steps [motion.Motors]float32, stepsPerUnit [motion.Motors]float32) [motion.Axes]float32 {
	var pos [motion.Axes]float32
	n := motion.Motors
	if motion.Axes < n {
		n = motion.Axes
	}
	for i := 0; i < n; i++ {
		if stepsPerUnit[i] == 0 {
			continue
		}
		pos[i] = steps[i] / stepsPerUnit[i]
	}
	return pos
}

// StepsPerUnit derives the steps-per-mm scale for one motor from its
// mechanical configuration (step angle, travel per revolution,
// microstepping), grounded on g2core's _set_motor_steps_per_unit.
func StepsPerUnit(stepAngle, travelPerRev float32, microsteps int) float32 {
	if stepAngle <= 0 || travelPerRev <= 0 || microsteps <= 0 {
		return 0
	}
	stepsPerRev := float32(360) / stepAngle
	return stepsPerRev * float32(microsteps) / travelPerRev
}
