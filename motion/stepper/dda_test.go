package stepper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/hal"
)

type pulseCounter struct {
	pulses [motion.Motors]int
}

func (p *pulseCounter) Pulse(motor int) { p.pulses[motor]++ }

type recordingTimer struct {
	enabled bool
	period  uint32
}

func (r *recordingTimer) SetPeriodAndEnable(id hal.TimerID, period uint32) {
	r.enabled = true
	r.period = period
}
func (r *recordingTimer) Disable(id hal.TimerID) { r.enabled = false }

type recordingEnable struct {
	levels [motion.Motors]bool
}

func (r *recordingEnable) SetEnable(motor int, level bool) { r.levels[motor] = level }

func TestDDATickPulsesOnOverflowAndExhausts(t *testing.T) {
	pins := &pulseCounter{}
	timer := &recordingTimer{}
	h := &hal.HAL{Step: pins, Timer: timer}
	dda := NewDDA(h)

	exhausted := false
	dda.OnExhausted = func() { exhausted = true }

	var steps [motion.Motors]uint32
	steps[0] = 1 // one step over the 3-tick segment: the counter overflows on the first tick only
	dda.Load(steps, [motion.Motors]bool{}, 3, 3, false)
	assert.True(t, dda.Running())

	dda.Tick()
	assert.Equal(t, 1, pins.pulses[0])
	assert.True(t, dda.Running())

	dda.Tick()
	assert.True(t, dda.Running())

	dda.Tick()
	assert.False(t, dda.Running(), "the DDA must stop once its tick countdown reaches zero")
	assert.True(t, exhausted)
	assert.False(t, timer.enabled, "exhaustion must disable the hardware timer")
}

func TestDDALoadWithZeroTicksDoesNotRun(t *testing.T) {
	dda := NewDDA(nil)
	dda.Load([motion.Motors]uint32{}, [motion.Motors]bool{}, 0, 0, false)
	assert.False(t, dda.Running())
}

func TestDDAPowerModesGateMotorEnable(t *testing.T) {
	en := &recordingEnable{}
	h := &hal.HAL{Enable: en}
	dda := NewDDA(h)

	dda.SetMotorPower(0, PoweredWhenMoving)
	dda.SetMotorPower(1, PoweredInCycle)
	dda.SetMotorPower(2, PowerAlwaysOn)
	assert.True(t, en.levels[2], "PowerAlwaysOn enables immediately")
	assert.False(t, en.levels[0])
	assert.False(t, en.levels[1])

	var steps [motion.Motors]uint32
	dda.Load(steps, [motion.Motors]bool{}, 1, 1, false)
	assert.True(t, en.levels[0], "PoweredWhenMoving motor must enable once the DDA starts a segment")

	dda.Tick() // exhausts immediately, triggers applyIdlePower

	assert.False(t, en.levels[0], "PoweredWhenMoving motor must disable once the segment ends")

	dda.ApplyRuntimeIdlePower()
	assert.False(t, en.levels[1], "PoweredInCycle motor must disable once the whole queue drains")
}
