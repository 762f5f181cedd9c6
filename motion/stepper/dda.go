package stepper

import (
	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/hal"
)

// PowerMode controls when a motor driver is enabled (spec.md §9
// "Power-saving motor enable", supplemented from g2core's motor power
// management in §11.1 of SPEC_FULL.md).
type PowerMode int

const (
	PowerAlwaysOn PowerMode = iota
	PowerOff
	// PoweredInCycle stays enabled for the whole run, disabled only on
	// runtime-idle.
	PoweredInCycle
	// PoweredWhenMoving is enabled only while the DDA timer is active.
	PoweredWhenMoving
)

// motorRun holds one motor's fractional step accumulator (spec.md §3 "DDA
// run context"). Pure integers: this is the only state the high-priority
// ISR touches.
type motorRun struct {
	steps    uint32
	counter  int64
	power    PowerMode
	enabled  bool
}

// DDA is the step generator (C1, spec.md §4.7). Tick is meant to be
// called at a fixed frequency from a high-priority timer interrupt; on a
// hosted build it is driven by runtime.Controller's scheduling loop
// instead, at the same logical priority.
type DDA struct {
	motors         [motion.Motors]motorRun
	ticksRemaining uint32
	ticksXSubsteps uint32
	running        bool

	hal *hal.HAL

	// OnExhausted is invoked inline when the DDA timer reaches zero,
	// standing in for the loader's software interrupt (spec.md §4.7's
	// "request the loader to install the next segment").
	OnExhausted func()
}

// NewDDA creates a DDA generator driving the given HAL.
func NewDDA(h *hal.HAL) *DDA {
	return &DDA{hal: h}
}

// Running reports whether the DDA timer is currently enabled.
func (d *DDA) Running() bool { return d.running }

// Load installs a new run segment (called by the loader, spec.md §4.8).
// counterReset re-seeds motor m's fractional counter to correct
// pulse-phase when consecutive segments have very different velocities.
func (d *DDA) Load(steps [motion.Motors]uint32, dir [motion.Motors]bool, ticks, ticksXSubsteps uint32, counterReset bool) {
	for m := 0; m < motion.Motors; m++ {
		d.motors[m].steps = steps[m]
		if counterReset {
			d.motors[m].counter = -int64(ticks)
		}
		if d.hal != nil && d.hal.Dir != nil {
			d.hal.Dir.SetDir(m, dir[m])
		}
		if (d.motors[m].power == PoweredWhenMoving || d.motors[m].power == PoweredInCycle) && ticks > 0 {
			d.setEnable(m, true)
		}
	}
	d.ticksRemaining = ticks
	d.ticksXSubsteps = ticksXSubsteps
	d.running = ticks > 0
}

// Disable stops the DDA timer without clearing motor state, used when the
// loader finds nothing ready to run.
func (d *DDA) Disable() { d.running = false }

// Tick runs one HIGH-priority ISR body (spec.md §4.7): accumulate each
// motor's fractional counter, pulse the step pin on overflow, then
// decrement the segment's tick countdown.
func (d *DDA) Tick() {
	if !d.running {
		return
	}
	for m := 0; m < motion.Motors; m++ {
		mr := &d.motors[m]
		mr.counter += int64(mr.steps)
		if mr.counter > 0 {
			mr.counter -= int64(d.ticksXSubsteps)
			if d.hal != nil && d.hal.Step != nil {
				d.hal.Step.Pulse(m)
			}
		}
	}

	if d.ticksRemaining == 0 {
		return
	}
	d.ticksRemaining--
	if d.ticksRemaining == 0 {
		d.running = false
		if d.hal != nil && d.hal.Timer != nil {
			d.hal.Timer.Disable(hal.TimerDDA)
		}
		d.applyIdlePower()
		if d.OnExhausted != nil {
			d.OnExhausted()
		}
	}
}

// SetMotorPower assigns motor m's power mode, consulted by
// applyIdlePower on DDA exhaustion ("when moving" mode) and by
// ApplyRuntimeIdlePower on full stop ("in cycle" mode).
func (d *DDA) SetMotorPower(m int, mode PowerMode) {
	if m < 0 || m >= motion.Motors {
		return
	}
	d.motors[m].power = mode
	d.setEnable(m, mode == PowerAlwaysOn)
}

func (d *DDA) applyIdlePower() {
	for m := range d.motors {
		if d.motors[m].power == PoweredWhenMoving {
			d.setEnable(m, false)
		}
	}
}

// ApplyRuntimeIdlePower disables every PoweredInCycle motor; called by
// the runtime once the whole queue has drained, not just one segment.
func (d *DDA) ApplyRuntimeIdlePower() {
	for m := range d.motors {
		if d.motors[m].power == PoweredInCycle {
			d.setEnable(m, false)
		}
	}
}

func (d *DDA) setEnable(m int, level bool) {
	d.motors[m].enabled = level
	if d.hal != nil && d.hal.Enable != nil {
		d.hal.Enable.SetEnable(m, level)
	}
}
