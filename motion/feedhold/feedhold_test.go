package feedhold

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/config"
	"github.com/synthetos/g2motion/motion/exec"
	"github.com/synthetos/g2motion/motion/kinematics"
	"github.com/synthetos/g2motion/motion/planner"
	"github.com/synthetos/g2motion/motion/stepper"
)

func setup(t *testing.T) (*planner.Planner, *exec.Exec, *stepper.DDA, *stepper.Loader, *motion.MoveBuffer) {
	t.Helper()
	settings := config.Default()
	for i := range settings.Axis {
		settings.Axis[i] = config.AxisSettings{
			VelocityMax: 6000, FeedrateMax: 6000, JerkMax: 50_000_000, JunctionDev: 0.05,
		}
	}
	p := planner.New(settings, zerolog.Nop())

	prep := &stepper.PrepSlot{}
	dda := stepper.NewDDA(nil)
	loader := stepper.NewLoader(prep, dda, nil)
	var stepsPerUnit [motion.Motors]float32
	for i := range stepsPerUnit {
		stepsPerUnit[i] = 1
	}
	e := exec.New(prep, nil, kinematics.Cartesian{}, settings, 50000, 1, stepsPerUnit, [motion.Motors]bool{}, zerolog.Nop())

	bf, err := p.ALine(motion.GCodeState{Target: [motion.Axes]float32{100}, Feedrate: 3000}, e)
	require.NoError(t, err)
	p.Replan()
	require.Equal(t, motion.BufferPlanned, bf.State)

	run := p.Ring.GetRunBuffer()
	require.Equal(t, bf, run)

	for i := 0; i < 10; i++ {
		_, err := e.RunSegment(bf)
		require.NoError(t, err)
		loader.Run()
	}
	require.True(t, e.Active(), "the move must be genuinely mid-flight before feedhold is exercised")

	return p, e, dda, loader, bf
}

func TestRequestHoldIsNoopOnceInProgress(t *testing.T) {
	_, e, _, _, _ := setup(t)
	c := New(nil, e, nil, zerolog.Nop())

	c.RequestHold()
	assert.Equal(t, StateSync, c.State())

	c.RequestHold()
	assert.Equal(t, StateSync, c.State(), "a second request while one is in progress must be a no-op")
}

func TestBeforeSegmentSyncReshapesIntoDecelToZero(t *testing.T) {
	_, e, _, _, bf := setup(t)
	c := New(nil, e, nil, zerolog.Nop())
	c.RequestHold()

	skip := c.BeforeSegment(bf)

	assert.False(t, skip, "SYNC still lets this tick's segment run, just reshaped")
	assert.Equal(t, StateDecelToZero, c.State())
	assert.Equal(t, float32(0), bf.ExitVelocity)
	assert.Greater(t, bf.TailLength, float32(0))
	assert.Less(t, bf.TailLength, bf.Length+1, "the reshaped tail must fit within the remaining travel")
}

func TestAfterSegmentAdvancesDecelToZeroOnCompletion(t *testing.T) {
	_, e, _, _, bf := setup(t)
	c := New(nil, e, nil, zerolog.Nop())
	c.RequestHold()
	c.BeforeSegment(bf)
	require.Equal(t, StateDecelToZero, c.State())

	c.AfterSegment(motion.StatusAgain)
	assert.Equal(t, StateDecelToZero, c.State(), "only a completed ramp advances the state")

	c.AfterSegment(motion.StatusOK)
	assert.Equal(t, StateDecelEnd, c.State())
}

func TestBeforeSegmentPendingWaitsForRuntimeIdle(t *testing.T) {
	p, e, _, _, bf := setup(t)
	idle := false
	c := New(p, e, func() bool { return idle }, zerolog.Nop())
	c.RequestHold()
	c.BeforeSegment(bf) // SYNC -> DECEL_TO_ZERO
	c.AfterSegment(motion.StatusOK) // -> DECEL_END
	c.BeforeSegment(bf) // DECEL_END -> PENDING (runs finishDecel)
	require.Equal(t, StatePending, c.State())

	skip := c.BeforeSegment(bf)
	assert.True(t, skip)
	assert.Equal(t, StatePending, c.State(), "must not enter HOLD while steppers are still moving")

	idle = true
	skip = c.BeforeSegment(bf)
	assert.True(t, skip)
	assert.Equal(t, StateHold, c.State())
}

func TestFullHoldAndResumeCycleReachesOriginalTarget(t *testing.T) {
	p, e, dda, loader, bf := setup(t)
	c := New(p, e, func() bool { return !dda.Running() }, zerolog.Nop())
	c.RequestHold()

	target := bf.Target
	completed := false
	for i := 0; i < 200000; i++ {
		run := p.Ring.GetRunBuffer()
		require.NotNil(t, run)
		if c.BeforeSegment(run) {
			loader.Run()
			if c.State() == StateHold {
				break
			}
			continue
		}
		status, err := run.Runner.RunSegment(run)
		require.NoError(t, err)
		c.AfterSegment(status)
		loader.Run()
		if status == motion.StatusOK {
			p.Ring.EndRunBuffer()
			completed = true
			break
		}
	}

	require.Equal(t, StateHold, c.State(), "a feedhold requested mid-move must bring the machine to a full stop")
	require.False(t, completed, "the move must not have been allowed to finish while held")

	c.RequestResume()
	assert.Equal(t, StateOff, c.State())

	for i := 0; i < 200000; i++ {
		run := p.Ring.GetRunBuffer()
		if run == nil {
			break
		}
		if c.BeforeSegment(run) {
			loader.Run()
			continue
		}
		status, err := run.Runner.RunSegment(run)
		require.NoError(t, err)
		c.AfterSegment(status)
		loader.Run()
		if status == motion.StatusOK {
			p.Ring.EndRunBuffer()
		}
	}

	assert.Equal(t, 0, p.Ring.Count(), "the queue must drain after resuming")
	pos := e.Position()
	assert.InDelta(t, target[0], pos[0], 1e-1, "position must be conserved across a hold/resume cycle")
}
