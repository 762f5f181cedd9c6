package exec

// forwardDiffs holds the five finite-difference accumulators that let the
// segment stepper evaluate a quintic (5th order) Bezier velocity curve one
// cheap addition at a time instead of a fresh polynomial evaluation per
// segment (spec.md §4.6, C4). Computed once per section by init, then
// walked forward one segment per tick by step.
type forwardDiffs struct {
	d1, d2, d3, d4, d5 float32
}

// initForwardDiffs fits the quintic Bezier curve V(s), s in [0,1], over a
// section spanning real time T, with V(0)=v0, V(1)=v1 and boundary
// accelerations a0, a1, through control points P0..P5 (the teacher's
// _init_forward_diffs in the look-ahead planner family), then derives the
// forward-difference table for a curve sampled at "segments" equally
// spaced steps. It returns the table and the velocity at the midpoint of
// the first segment, V(h/2), which is where the segment stepper actually
// starts (spec.md §4.6 "segment velocity is sampled at the segment
// midpoint, not its edges").
//
// Every head/tail section in this planner begins and ends at zero
// acceleration and zero jerk (spec.md §4.6's "typical endpoint
// configuration: a0 = a1 = j0 = j1 = 0", matching plan_exec.cpp's
// cruise_jerk/exit_jerk fields, which the original never assigns away
// from their zero default). a0 and a1 are fixed at 0 inside this
// function; j0 and j1 are parameters, and both callers pass 0. The P-point
// formula keeps its general form rather than a special-cased smoothstep.
func initForwardDiffs(v0, v1, j0, j1, t, segments float32) (forwardDiffs, float32) {
	if segments <= 0 {
		return forwardDiffs{}, v0
	}
	const a0, a1 float32 = 0, 0
	fifthT := t * 0.2
	twoFifthsT := t * 0.4
	twentiethT2 := t * t * 0.05

	p0 := v0
	p1 := v0 + fifthT*a0
	p2 := v0 + twoFifthsT*a0 + twentiethT2*j0
	p3 := v1 - twoFifthsT*a1 - twentiethT2*j1
	p4 := v1 - fifthT*a1
	p5 := v1

	a := 5*(p1-p4+2*(p3-p2)) + p5 - p0
	b := 5 * (p0 + p4 - 4*(p3+p1) + 6*p2)
	c := 10 * (p3 - p0 + 3*(p1-p2))
	d := 10 * (p0 + p2 - 2*p1)
	e := 5 * (p1 - p0)

	h := 1 / segments
	h2 := h * h
	h3 := h2 * h
	h4 := h3 * h
	h5 := h4 * h

	ah5 := a * h5
	bh4 := b * h4
	ch3 := c * h3
	dh2 := d * h2
	eh := e * h

	const (
		const1 float32 = 7.5625 // 121/16
		const2 float32 = 3.25   // 13/4
		const3 float32 = 82.5   // 165/2
	)

	fd := forwardDiffs{
		d5: const1*ah5 + 5.0*bh4 + const2*ch3 + 2.0*dh2 + eh,
		d4: const3*ah5 + 29.0*bh4 + 9.0*ch3 + 2.0*dh2,
		d3: 255.0*ah5 + 48.0*bh4 + 6.0*ch3,
		d2: 300.0*ah5 + 24.0*bh4,
		d1: 120.0 * ah5,
	}

	halfH := h * 0.5
	halfH2 := halfH * halfH
	halfH3 := halfH2 * halfH
	halfH4 := halfH3 * halfH
	halfH5 := halfH4 * halfH
	v := a*halfH5 + b*halfH4 + c*halfH3 + d*halfH2 + e*halfH + v0

	return fd, v
}

// step advances the velocity curve by one segment (the forward-difference
// recurrence, applied every segment after the first).
func (fd *forwardDiffs) step(v float32) float32 {
	v += fd.d5
	fd.d5 += fd.d4
	fd.d4 += fd.d3
	fd.d3 += fd.d2
	fd.d2 += fd.d1
	return v
}
