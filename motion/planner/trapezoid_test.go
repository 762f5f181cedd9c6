package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthetos/g2motion/motion"
)

func baseBuffer() *motion.MoveBuffer {
	bf := &motion.MoveBuffer{Kind: motion.MoveALine}
	bf.Jerk = 50_000_000
	bf.RecipJerk = 1 / bf.Jerk
	return bf
}

func TestTrapezoidLengthConservation(t *testing.T) {
	tests := []struct {
		name                      string
		length, entry, cruise, ex float32
	}{
		{"plain trapezoid", 1000, 100, 800, 200},
		{"cruise only", 1000, 800, 800, 800},
		{"accelerate only", 1000, 0, 800, 800},
		{"decelerate only", 1000, 800, 800, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bf := baseBuffer()
			bf.Length = tt.length
			bf.EntryVelocity, bf.CruiseVelocity, bf.ExitVelocity = tt.entry, tt.cruise, tt.ex
			bf.CruiseVmax = tt.cruise
			bf.DeltaVmax = 1_000_000

			trapezoid(bf, 0.0000125, 0.000025) // 0.75ms / 1.5ms in minutes

			sum := bf.HeadLength + bf.BodyLength + bf.TailLength
			assert.InDelta(t, tt.length, sum, 1, "head+body+tail must reconstruct the original length")
			assert.GreaterOrEqual(t, bf.HeadLength, float32(0))
			assert.GreaterOrEqual(t, bf.BodyLength, float32(0))
			assert.GreaterOrEqual(t, bf.TailLength, float32(0))
		})
	}
}

func TestTrapezoidTooShortCollapsesToBody(t *testing.T) {
	bf := baseBuffer()
	bf.Length = 0.001 // far shorter than even one minimum segment at these velocities
	bf.EntryVelocity, bf.CruiseVelocity, bf.ExitVelocity = 100, 800, 200
	bf.CruiseVmax = 800
	bf.DeltaVmax = 1_000_000

	trapezoid(bf, 0.0000125, 0.000025)

	assert.Equal(t, float32(0), bf.HeadLength)
	assert.Equal(t, float32(0), bf.TailLength)
	assert.Equal(t, bf.Length, bf.BodyLength)
}

func TestRateLimitedSymmetricMeetsInMiddle(t *testing.T) {
	bf := baseBuffer()
	bf.Length = 1
	bf.EntryVelocity, bf.ExitVelocity = 100, 100
	bf.CruiseVmax = 100000
	bf.DeltaVmax = 1_000_000

	rateLimited(bf, 0.0000125)

	require.InDelta(t, bf.Length/2, bf.HeadLength, 1e-6)
	require.InDelta(t, bf.Length/2, bf.TailLength, 1e-6)
	assert.GreaterOrEqual(t, bf.CruiseVelocity, bf.EntryVelocity)
}

func TestRateLimitedAsymmetricLengthConservation(t *testing.T) {
	bf := baseBuffer()
	bf.Length = 1
	bf.EntryVelocity, bf.ExitVelocity = 100, 900
	bf.CruiseVmax = 100000
	bf.DeltaVmax = 1_000_000

	rateLimited(bf, 0.0000125)

	assert.InDelta(t, bf.Length, bf.HeadLength+bf.TailLength, 1e-4)
}
