package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthetos/g2motion/motion"
)

func TestDwellRejectsNonPositiveDuration(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.Dwell(0, nil)
	assert.ErrorIs(t, err, motion.ErrZeroLengthMove)

	_, err = p.Dwell(-1, nil)
	assert.ErrorIs(t, err, motion.ErrZeroLengthMove)
}

func TestDwellAdmitsAPreppedNonReplannableBuffer(t *testing.T) {
	p := newTestPlanner(t)
	bf, err := p.Dwell(1.5, nil)
	require.NoError(t, err)

	assert.Equal(t, motion.MoveDwell, bf.Kind)
	assert.Equal(t, float32(1.5), bf.MoveTime)
	assert.Equal(t, motion.BufferPrepped, bf.State, "dwell needs no look-ahead shaping")
	assert.False(t, bf.Replannable)
	assert.False(t, bf.Plannable)
	assert.Equal(t, float32(0), bf.EntryVelocity)
	assert.Equal(t, float32(0), bf.ExitVelocity)
	assert.Equal(t, 1, p.Ring.Count())
}

func TestQueueCommandPanicsOnNilCallback(t *testing.T) {
	p := newTestPlanner(t)
	assert.Panics(t, func() {
		_, _ = p.QueueCommand(nil, [motion.Axes]float32{}, [motion.Axes]float32{})
	})
}

func TestQueueCommandAdmitsANonPlannableBuffer(t *testing.T) {
	p := newTestPlanner(t)
	called := false
	cb := func(values, flags [motion.Axes]float32) error {
		called = true
		return nil
	}
	values := [motion.Axes]float32{1, 2, 3}
	flags := [motion.Axes]float32{1, 0, 0}

	bf, err := p.QueueCommand(cb, values, flags)
	require.NoError(t, err)

	assert.Equal(t, motion.MoveCommand, bf.Kind)
	assert.Equal(t, values, bf.CmdValues)
	assert.Equal(t, flags, bf.CmdFlags)
	assert.False(t, bf.Replannable)
	assert.False(t, bf.Plannable)
	assert.Equal(t, 1, p.Ring.Count())

	require.NotNil(t, bf.CmFunc)
	require.NoError(t, bf.CmFunc(values, flags))
	assert.True(t, called)
}

func TestRequestQueueFlushResetsStateToIdle(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.ALine(move([motion.Axes]float32{100}), nil)
	require.NoError(t, err)
	require.NotEqual(t, StateIdle, p.State())

	p.RequestQueueFlush()

	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 0, p.Ring.Count())
}

func TestEndRunBufferDrainsQueueToEmptyAndCountZero(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.ALine(move([motion.Axes]float32{100}), nil)
	require.NoError(t, err)
	p.Replan()

	run := p.Ring.GetRunBuffer()
	require.NotNil(t, run)
	require.Equal(t, motion.BufferRunning, run.State)

	p.Ring.EndRunBuffer()

	assert.Equal(t, 0, p.Ring.Count(), "the ring must fully drain once its one buffer finishes")
	assert.Nil(t, p.Ring.GetRunBuffer(), "an empty ring has nothing left to run")
}
