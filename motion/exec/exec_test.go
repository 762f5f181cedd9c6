package exec

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/config"
	"github.com/synthetos/g2motion/motion/kinematics"
	"github.com/synthetos/g2motion/motion/stepper"
)

func newTestExec() (*Exec, *stepper.Loader) {
	prep := &stepper.PrepSlot{}
	dda := stepper.NewDDA(nil)
	loader := stepper.NewLoader(prep, dda, nil)

	var stepsPerUnit [motion.Motors]float32
	for i := range stepsPerUnit {
		stepsPerUnit[i] = 1
	}

	e := New(prep, nil, kinematics.Cartesian{}, config.Default(), 50000, 1, stepsPerUnit, [motion.Motors]bool{}, zerolog.Nop())
	return e, loader
}

// runToCompletion alternates RunSegment (exec, MEDIUM priority) with
// Run (the loader, reclaiming the prep slot), mirroring how
// motion/runtime wires the two stages together.
func runToCompletion(t *testing.T, e *Exec, loader *stepper.Loader, bf *motion.MoveBuffer) motion.Status {
	t.Helper()
	var status motion.Status
	var err error
	for i := 0; i < 100000; i++ {
		status, err = e.RunSegment(bf)
		require.NoError(t, err)
		loader.Run()
		if status == motion.StatusOK || status == motion.StatusEOF {
			return status
		}
	}
	t.Fatal("exec: move never completed")
	return status
}

func trapezoidBuffer() *motion.MoveBuffer {
	bf := &motion.MoveBuffer{Kind: motion.MoveALine}
	bf.Unit[0] = 1
	bf.AxisFlags[0] = true
	bf.Length = 1.2
	bf.Target[0] = 1.2
	bf.HeadLength, bf.BodyLength, bf.TailLength = 0.3, 0.6, 0.3
	bf.EntryVelocity, bf.CruiseVelocity, bf.ExitVelocity = 0, 600, 0
	bf.HeadTime = 2 * bf.HeadLength / (bf.EntryVelocity + bf.CruiseVelocity)
	bf.BodyTime = 2 * bf.BodyLength / (bf.CruiseVelocity + bf.CruiseVelocity)
	bf.TailTime = 2 * bf.TailLength / (bf.CruiseVelocity + bf.ExitVelocity)
	bf.Jerk = 50_000_000
	bf.RecipJerk = 1 / bf.Jerk
	return bf
}

func TestRunSegmentConservesPositionAcrossAFullTrapezoid(t *testing.T) {
	e, loader := newTestExec()
	bf := trapezoidBuffer()

	status := runToCompletion(t, e, loader, bf)

	assert.Equal(t, motion.StatusOK, status)
	pos := e.Position()
	assert.InDelta(t, bf.Target[0], pos[0], 1e-3, "the move must end exactly at its commanded target")
}

func TestRunSegmentStartsFreshForANewBuffer(t *testing.T) {
	e, loader := newTestExec()
	bf1 := trapezoidBuffer()
	runToCompletion(t, e, loader, bf1)

	bf2 := trapezoidBuffer()
	bf2.Target[0] = bf1.Target[0] + bf2.Length
	status := runToCompletion(t, e, loader, bf2)

	assert.Equal(t, motion.StatusOK, status)
	pos := e.Position()
	assert.InDelta(t, bf2.Target[0], pos[0], 1e-3, "position must carry over and conserve across consecutive buffers")
}

func TestRunSegmentZeroLengthBufferCompletesImmediately(t *testing.T) {
	e, _ := newTestExec()
	bf := &motion.MoveBuffer{Kind: motion.MoveALine}
	bf.Length = 0

	status, err := e.RunSegment(bf)
	require.NoError(t, err)
	assert.Equal(t, motion.StatusOK, status)
}

func TestFoldsShortHeadAndTailIntoBody(t *testing.T) {
	e, loader := newTestExec()
	bf := &motion.MoveBuffer{Kind: motion.MoveALine}
	bf.Unit[0] = 1
	bf.AxisFlags[0] = true
	bf.Length = 10
	bf.Target[0] = 10
	// Head/tail times below MinSegmentTimeMs/60000 must fold into the body
	// rather than be stepped as their own ramp (spec.md §4.5).
	bf.HeadLength, bf.BodyLength, bf.TailLength = 0.001, 9.998, 0.001
	bf.EntryVelocity, bf.CruiseVelocity, bf.ExitVelocity = 600, 600, 600
	bf.HeadTime = 0.001 / 60000
	bf.BodyTime = bf.BodyLength / bf.CruiseVelocity
	bf.TailTime = 0.001 / 60000
	bf.Jerk = 50_000_000
	bf.RecipJerk = 1 / bf.Jerk

	status := runToCompletion(t, e, loader, bf)

	assert.Equal(t, motion.StatusOK, status)
	pos := e.Position()
	assert.InDelta(t, bf.Target[0], pos[0], 1e-3)
}
