package stepper

import (
	"github.com/synthetos/g2motion/motion/hal"
)

// Loader transfers a prepared segment from the prep slot into the DDA's
// run context (spec.md §4.8, C2). It runs at a priority between exec and
// the DDA ISR; on a hosted build, runtime.Controller invokes it inline
// wherever the firmware would have taken the LOAD software interrupt.
type Loader struct {
	prep *PrepSlot
	dda  *DDA
	hal  *hal.HAL

	// RequestExec asks the medium-priority stage to produce the next
	// segment (spec.md §4.8: "disable DDA (no work) and request an exec").
	RequestExec func()
}

// NewLoader wires a loader over the given prep slot, DDA and HAL.
func NewLoader(prep *PrepSlot, dda *DDA, h *hal.HAL) *Loader {
	return &Loader{prep: prep, dda: dda, hal: h}
}

// Run executes one loader pass, called whenever the DDA timer expires or
// at startup (spec.md §4.8).
func (l *Loader) Run() {
	if !l.prep.ownedByLoader() {
		l.dda.Disable()
		if l.RequestExec != nil {
			l.RequestExec()
		}
		return
	}

	// prep.Dir already carries the motor's polarity inversion, applied
	// once by PrepLine; the loader copies it through unchanged.
	l.dda.Load(l.prep.Steps, l.prep.Dir, l.prep.TimerTicks, l.prep.TimerTicksXSubsteps, l.prep.CounterReset)

	if l.hal != nil && l.hal.Timer != nil {
		l.hal.Timer.SetPeriodAndEnable(hal.TimerDDA, l.prep.TimerPeriod)
	}

	l.prep.releaseToExec()
	if l.RequestExec != nil {
		l.RequestExec()
	}
}
