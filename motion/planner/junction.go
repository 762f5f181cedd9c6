package planner

import (
	"github.com/chewxy/math32"

	"github.com/synthetos/g2motion/motion"
)

// junctionVmax computes the maximum velocity through the corner joining
// two unit-vector moves (spec.md §4.2, C8). Grounded on g2core's
// _calculate_junction_vmax (plan_line.cpp): Sonny's algorithm, fitting a
// circle tangent to both line segments and limiting centripetal
// acceleration through it.
//
// cosTheta is computed with a leading minus sign deliberately: it is the
// cosine of the deflection angle between the *arriving* and *departing*
// direction vectors, not the angle between the vectors as stored.
func junctionVmax(vmax float32, prevUnit, unit [motion.Axes]float32, junctionDev [motion.Axes]float32, junctionAccel float32) float32 {
	var cosTheta float32
	for i := 0; i < motion.Axes; i++ {
		cosTheta -= prevUnit[i] * unit[i]
	}

	if cosTheta < -0.99 {
		return vmax // approximately straight
	}
	if cosTheta > 0.99 {
		return 0 // approximately a reversal
	}

	var aDelta, bDelta float32
	for i := 0; i < motion.Axes; i++ {
		aDelta += square(prevUnit[i] * junctionDev[i])
		bDelta += square(unit[i] * junctionDev[i])
	}

	delta := (math32.Sqrt(aDelta) + math32.Sqrt(bDelta)) / 2
	sinHalfTheta := math32.Sqrt((1 - cosTheta) / 2)
	radius := delta * sinHalfTheta / (1 - sinHalfTheta)

	v := math32.Sqrt(radius * junctionAccel)
	if v > vmax {
		return vmax
	}
	return v
}

func square(x float32) float32 { return x * x }
