package motion

// Axes and motors. TinyG2 supports up to six Cartesian/rotary axes (XYZABC)
// mapped onto up to six motors; the mapping itself (kinematics) is a
// separate concern (see the kinematics package).
const (
	Axes   = 6
	Motors = 6
)

// Axis indices, matching g2core's AXIS_X.._AXIS_C ordering.
const (
	AxisX = iota
	AxisY
	AxisZ
	AxisA
	AxisB
	AxisC
)

// Canonical tuning defaults (spec.md §6). All are overridable via
// config.Settings; these are the values used when a Settings field is left
// at its zero value would otherwise be unusable.
const (
	// JerkMultiplier restores jerk to engineering units (mm/min^3) from the
	// per-axis jerk_max figures, which are stored scaled down for human
	// readability in configuration.
	JerkMultiplier = 1e6

	MinSegmentMs  = 0.75
	NomSegmentMs  = 1.5
	MinBlockMs    = 1.5
	BlockTimeoutMs = 30
	PhatCityMs    = 100

	PlannerRingMinSize   = 28
	PlannerBufferHeadroom = 4

	JunctionAggressionMin = 0.001
	JunctionAggressionMax = 10.0

	// VelocityEq is the tolerance used when comparing velocities for
	// equality (continuity checks, trapezoid "velocities all match" case).
	VelocityEq = 1e-4

	// LengthEps is the minimum resolvable move length; below this aline
	// returns ErrMinimumLengthMove without committing a buffer.
	LengthEps = 1e-6

	// MinSegmentTimeMarginFactor widens MinSegmentTime for the
	// too-short-move trapezoid fallback (plan_zoid.cpp's
	// MIN_SEGMENT_TIME_PLUS_MARGIN).
	MinSegmentTimeMarginFactor = 1.1
)

// The linear-snap length<->velocity constants live in package planner
// (kinematics.go), which is the only place they're used; see
// DESIGN.md "Open Question: jerk formulation".
