// Package runtime wires the planner, exec, stepper and feedhold stages
// into the three-tier interrupt priority model spec.md §5 and §9
// describe, expressed as ordinary Go method calls rather than real
// hardware interrupts: HIGH (DDA.Tick), MEDIUM (Loader.Run, Exec via
// feedhold.Controller) and LOW (the main loop: admission, Tick,
// RunOnce). This is the only package that recovers from a motion.Fault
// panic, mirroring the firmware's halt-on-assertion-failure behavior
// (spec.md §7).
package runtime

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/config"
	"github.com/synthetos/g2motion/motion/dwell"
	"github.com/synthetos/g2motion/motion/exec"
	"github.com/synthetos/g2motion/motion/feedhold"
	"github.com/synthetos/g2motion/motion/hal"
	"github.com/synthetos/g2motion/motion/obs"
	"github.com/synthetos/g2motion/motion/kinematics"
	"github.com/synthetos/g2motion/motion/planner"
	"github.com/synthetos/g2motion/motion/stepper"
)

// Controller is the top-level assembly spec.md §5 describes: the
// priority tiers below are stand-ins for the firmware's HIGH/MEDIUM/LOW
// interrupt levels, called synchronously: the host calls HighPriorityTick
// itself, and RunOnce runs the MEDIUM tier before the LOW tier, so a
// hosted build sees the same ordering guarantees the real ISRs give
// (DDA always wins a race against exec; exec always wins a race against
// the main loop).
type Controller struct {
	Planner  *planner.Planner
	Exec     *exec.Exec
	Prep     *stepper.PrepSlot
	DDA      *stepper.DDA
	Loader   *stepper.Loader
	Feedhold *feedhold.Controller
	HAL      *hal.HAL
	Log      zerolog.Logger
	Counters obs.Counters

	execRequested bool
}

// Config bundles the construction-time parameters New needs beyond
// config.Settings, matching the per-axis/per-motor fan-out exec.New
// already takes.
type Config struct {
	Settings      config.Settings
	Kinematics    kinematics.Model
	HAL           *hal.HAL
	DDAFrequency  float32
	SubstepScale  float32
	StepsPerUnit  [motion.Motors]float32
	Polarity      [motion.Motors]bool
	Log           zerolog.Logger
}

// New assembles one full pipeline: planner, exec, prep slot, DDA, loader
// and feedhold, all sharing the Config's HAL and settings.
func New(cfg Config) *Controller {
	p := planner.New(cfg.Settings, cfg.Log)
	prep := &stepper.PrepSlot{}
	e := exec.New(prep, cfg.HAL, cfg.Kinematics, cfg.Settings, cfg.DDAFrequency, cfg.SubstepScale, cfg.StepsPerUnit, cfg.Polarity, cfg.Log)
	dda := stepper.NewDDA(cfg.HAL)
	loader := stepper.NewLoader(prep, dda, cfg.HAL)

	c := &Controller{
		Planner: p,
		Exec:    e,
		Prep:    prep,
		DDA:     dda,
		Loader:  loader,
		HAL:     cfg.HAL,
		Log:     cfg.Log,
	}
	c.Feedhold = feedhold.New(p, e, c.runtimeIdle, cfg.Log)

	loader.RequestExec = func() { c.execRequested = true }
	dda.OnExhausted = func() { loader.Run() }

	return c
}

// HighPriorityTick drives the DDA step generator (spec.md §4.7, the HIGH
// tier). On real hardware this is the step-timer ISR; here it is called
// once per simulated timer period.
func (c *Controller) HighPriorityTick() {
	c.DDA.Tick()
}

// mediumPriorityTick drives the loader and exec stages (spec.md §4.8,
// §4.9, the MEDIUM tier). RunOnce calls it; it services the exec request
// that a DDA exhaustion in HighPriorityTick left behind (OnExhausted ->
// Loader.Run -> RequestExec), running one buffer segment per request,
// mirroring how the real board chains the LOAD and EXEC software
// interrupts back to back.
func (c *Controller) mediumPriorityTick() {
	if !c.DDA.Running() && c.Planner.Ring.Count() > 0 {
		// Bootstrap: nothing will ever call OnExhausted to restart the
		// loader/exec chain once the DDA has gone idle with fresh work
		// waiting, so the main loop pokes it directly (spec.md §4.8's
		// "request the loader" path, taken here instead of by ISR).
		c.Loader.Run()
	}
	for c.execRequested {
		c.execRequested = false
		c.runOneBuffer()
	}
}

// runOneBuffer advances the currently-running ring buffer by exactly one
// segment, bracketed by the feedhold controller's before/after hooks
// (spec.md §4.11).
func (c *Controller) runOneBuffer() {
	defer c.recoverFault()

	bf := c.Planner.Ring.GetRunBuffer()
	if bf == nil {
		return
	}

	if c.Feedhold.BeforeSegment(bf) {
		return
	}

	runner := bf.Runner
	if runner == nil {
		if bf.Kind == motion.MoveCommand {
			c.runCommand(bf)
		}
		return
	}

	status, err := runner.RunSegment(bf)
	c.Feedhold.AfterSegment(status)
	if err != nil {
		c.Log.Debug().Err(err).Msg("runtime: segment runner returned error")
		return
	}

	c.Counters.SegmentsRun.Add(1)
	if status == motion.StatusOK || status == motion.StatusEOF {
		c.Planner.Ring.EndRunBuffer()
		c.Counters.BuffersFreed.Add(1)
	}
}

// runCommand executes a queue_command callback synchronously, in queue
// order (spec.md §6, §11.1), then frees its buffer.
func (c *Controller) runCommand(bf *motion.MoveBuffer) {
	if bf.CmFunc != nil {
		if err := bf.CmFunc(bf.CmdValues, bf.CmdFlags); err != nil {
			c.Log.Error().Err(err).Msg("runtime: queued command failed")
		}
	}
	c.Planner.Ring.EndRunBuffer()
	c.Counters.BuffersFreed.Add(1)
}

// recoverFault is the sole motion.Fault recovery point (spec.md §7): it
// logs the fault and stops driving the DDA, the Go-hosted equivalent of
// the firmware halting and awaiting a reset.
func (c *Controller) recoverFault() {
	r := recover()
	if r == nil {
		return
	}
	f, ok := r.(motion.Fault)
	if !ok {
		panic(r)
	}
	obs.LogFault(c.Log, f, &c.Counters)
	c.DDA.Disable()
}

// runtimeIdle reports whether the DDA has fully drained, the predicate
// feedhold.Controller needs to move PENDING -> HOLD (spec.md §4.11).
func (c *Controller) runtimeIdle() bool {
	return !c.DDA.Running()
}

// RunOnce runs one LOW-priority main-loop pass (spec.md §5): drains any
// pending MEDIUM-tier work, then re-evaluates the look-ahead planner
// against wall-clock time.
func (c *Controller) RunOnce(now time.Time) {
	c.mediumPriorityTick()
	c.Planner.Tick(now)
}

// RequestHold arms a feedhold (spec.md §6 request_feedhold()).
func (c *Controller) RequestHold() { c.Feedhold.RequestHold() }

// RequestResume clears a completed hold (spec.md §4.11 "Resume").
func (c *Controller) RequestResume() { c.Feedhold.RequestResume() }

// RequestQueueFlush empties all non-running buffers (spec.md §6).
func (c *Controller) RequestQueueFlush() { c.Planner.RequestQueueFlush() }

// ALine admits a Cartesian move using exec as its segment runner,
// counting the admission alongside the DDA/exec hot-path counters so a
// status endpoint sees the whole pipeline's throughput in one place.
func (c *Controller) ALine(gc motion.GCodeState) (*motion.MoveBuffer, error) {
	bf, err := c.Planner.ALine(gc, c.Exec)
	if err == nil {
		c.Counters.BuffersAdmitted.Add(1)
	}
	return bf, err
}

// Dwell admits a dwell buffer using a fresh dwell.Runner over the
// controller's HAL.
func (c *Controller) Dwell(seconds float32) (*motion.MoveBuffer, error) {
	bf, err := c.Planner.Dwell(seconds, dwell.New(c.HAL))
	if err == nil {
		c.Counters.BuffersAdmitted.Add(1)
	}
	return bf, err
}

// QueueCommand admits a synchronous command callback in queue order.
func (c *Controller) QueueCommand(cb motion.CommandFunc, values, flags [motion.Axes]float32) (*motion.MoveBuffer, error) {
	bf, err := c.Planner.QueueCommand(cb, values, flags)
	if err == nil {
		c.Counters.BuffersAdmitted.Add(1)
	}
	return bf, err
}

// Idle reports whether the ring is empty and the DDA has stopped,
// applying PoweredInCycle power-down where configured. The prep slot is
// not consulted.
func (c *Controller) Idle() bool {
	idle := c.Planner.Ring.Count() == 0 && !c.DDA.Running()
	if idle {
		c.DDA.ApplyRuntimeIdlePower()
	}
	return idle
}
