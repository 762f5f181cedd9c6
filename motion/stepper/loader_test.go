package stepper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthetos/g2motion/motion"
)

func TestLoaderRunWithNothingPreppedRequestsExec(t *testing.T) {
	prep := &PrepSlot{}
	dda := NewDDA(nil)
	requested := false
	loader := NewLoader(prep, dda, nil)
	loader.RequestExec = func() { requested = true }

	loader.Run()

	assert.True(t, requested, "an empty prep slot must ask exec to produce a segment")
	assert.False(t, dda.Running())
}

func TestLoaderRunTransfersPreppedSegmentToDDA(t *testing.T) {
	prep := &PrepSlot{}
	dda := NewDDA(nil)
	loader := NewLoader(prep, dda, nil)
	requested := 0
	loader.RequestExec = func() { requested++ }

	var travel [motion.Motors]float32
	travel[0] = 100
	_, err := prep.PrepLine(travel, 0.001, 50000, 1, [motion.Motors]bool{}, motion.MoveALine)
	require.NoError(t, err)
	require.True(t, prep.ownedByLoader())

	loader.Run()

	assert.True(t, dda.Running(), "loading a segment with nonzero ticks must arm the DDA")
	assert.True(t, prep.ownedByExec(), "the loader must hand the slot back once it has copied the segment out")
	assert.Equal(t, 1, requested, "the loader always asks for the next segment after loading this one")
}
