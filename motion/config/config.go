// Package config defines the motion core's tuning surface and the
// key-value provider contract it reads from at startup (spec.md §6). The
// provider itself — the text/JSON command layer and persistent storage —
// is out of scope; this package only defines the shape the core expects.
package config

import (
	"fmt"
	"strconv"

	"github.com/synthetos/g2motion/motion"
)

// AxisSettings holds the per-axis tuning values spec.md §6 lists.
type AxisSettings struct {
	VelocityMax float32 // xvm, yvm, ...
	FeedrateMax float32 // xfr, ...
	JerkMax     float32 // xjm, ... (engineering units before JerkMultiplier)
	JunctionDev float32 // xjd, ...
	TravelMin   float32
	TravelMax   float32
}

// MotorSettings holds the per-motor tuning values.
type MotorSettings struct {
	StepAngle    float32
	TravelPerRev float32
	Microsteps   int
	Polarity     bool
}

// Settings is the full set of system and per-axis/per-motor tuning
// values the planner, exec and stepper stages read.
type Settings struct {
	Axis  [motion.Axes]AxisSettings
	Motor [motion.Motors]MotorSettings

	JunctionAcceleration float32
	ChordalTolerance     float32
	MinSegmentTimeMs     float32
	NomSegmentTimeMs     float32
	BlockTimeoutMs       float32
	RingSize             int
}

// Default returns settings matching spec.md §6's canonical defaults, with
// no per-axis limits set (callers must configure those before use).
func Default() Settings {
	return Settings{
		JunctionAcceleration: 1.0,
		ChordalTolerance:     0.01,
		MinSegmentTimeMs:     motion.MinSegmentMs,
		NomSegmentTimeMs:     motion.NomSegmentMs,
		BlockTimeoutMs:       motion.BlockTimeoutMs,
		RingSize:             motion.PlannerRingMinSize + motion.PlannerBufferHeadroom,
	}
}

// Provider is the external key-value configuration source (spec.md §6):
// settings are read at startup and written through synchronously on
// explicit set requests. Tokens are the short keys the firmware uses
// ("xvm", "1sa", "ja", ...).
type Provider interface {
	Get(token string) (string, bool)
	Set(token, value string) error
}

// ErrUnknownToken is returned by a Provider's Set when the token isn't one
// of the short keys Load understands (spec.md §6: "explicit set requests").
type ErrUnknownToken string

func (e ErrUnknownToken) Error() string { return fmt.Sprintf("config: unknown token %q", string(e)) }

var axisLetters = [motion.Axes]string{"x", "y", "z", "a", "b", "c"}

var axisTokenSuffixes = [...]string{"vm", "fr", "jm", "jd", "tn", "tm"}
var motorTokenSuffixes = [...]string{"sa", "tr", "mi", "po"}
var globalTokens = [...]string{"ja", "ct", "mt", "nt", "qt", "rs"}

// KnownToken reports whether token is one of the short keys Load/Set
// understand.
func KnownToken(token string) bool {
	for _, g := range globalTokens {
		if token == g {
			return true
		}
	}
	for _, letter := range axisLetters {
		for _, suffix := range axisTokenSuffixes {
			if token == letter+suffix {
				return true
			}
		}
	}
	for i := range [motion.Motors]struct{}{} {
		prefix := strconv.Itoa(i + 1)
		for _, suffix := range motorTokenSuffixes {
			if token == prefix+suffix {
				return true
			}
		}
	}
	return false
}

// Load reads the full settings surface from p, following TinyG2's short
// token naming: per-axis tokens are "<letter>vm/fr/jm/jd/tn/tm" (velocity
// max, feedrate max, jerk max, junction deviation, travel min/max);
// per-motor tokens are "<n>sa/tr/mi/po" (step angle, travel per rev,
// microsteps, polarity), 1-indexed; global tokens are "ja" (junction
// acceleration), "ct" (chordal tolerance), "mt"/"nt" (min/nom segment
// time ms), "qt" (block timeout ms) and "rs" (ring size). Missing
// optional tokens keep Default's value; a malformed present token is an
// error.
func Load(p Provider) (Settings, error) {
	s := Default()

	for i, letter := range axisLetters {
		a := &s.Axis[i]
		if err := loadFloat(p, letter+"vm", &a.VelocityMax); err != nil {
			return s, err
		}
		if err := loadFloat(p, letter+"fr", &a.FeedrateMax); err != nil {
			return s, err
		}
		if err := loadFloat(p, letter+"jm", &a.JerkMax); err != nil {
			return s, err
		}
		if err := loadFloat(p, letter+"jd", &a.JunctionDev); err != nil {
			return s, err
		}
		if err := loadFloat(p, letter+"tn", &a.TravelMin); err != nil {
			return s, err
		}
		if err := loadFloat(p, letter+"tm", &a.TravelMax); err != nil {
			return s, err
		}
	}

	for i := range s.Motor {
		m := &s.Motor[i]
		prefix := strconv.Itoa(i + 1)
		if err := loadFloat(p, prefix+"sa", &m.StepAngle); err != nil {
			return s, err
		}
		if err := loadFloat(p, prefix+"tr", &m.TravelPerRev); err != nil {
			return s, err
		}
		if err := loadInt(p, prefix+"mi", &m.Microsteps); err != nil {
			return s, err
		}
		if err := loadBool(p, prefix+"po", &m.Polarity); err != nil {
			return s, err
		}
	}

	if err := loadFloat(p, "ja", &s.JunctionAcceleration); err != nil {
		return s, err
	}
	if err := loadFloat(p, "ct", &s.ChordalTolerance); err != nil {
		return s, err
	}
	if err := loadFloat(p, "mt", &s.MinSegmentTimeMs); err != nil {
		return s, err
	}
	if err := loadFloat(p, "nt", &s.NomSegmentTimeMs); err != nil {
		return s, err
	}
	if err := loadFloat(p, "qt", &s.BlockTimeoutMs); err != nil {
		return s, err
	}
	if err := loadInt(p, "rs", &s.RingSize); err != nil {
		return s, err
	}

	return s, nil
}

func loadFloat(p Provider, token string, dst *float32) error {
	v, ok := p.Get(token)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return fmt.Errorf("config: token %q: %w", token, err)
	}
	*dst = float32(f)
	return nil
}

func loadInt(p Provider, token string, dst *int) error {
	v, ok := p.Get(token)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: token %q: %w", token, err)
	}
	*dst = n
	return nil
}

func loadBool(p Provider, token string, dst *bool) error {
	v, ok := p.Get(token)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: token %q: %w", token, err)
	}
	*dst = b
	return nil
}
