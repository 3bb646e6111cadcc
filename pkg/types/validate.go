// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Violation describes a single validation failure, referencing the field
// that caused it.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Reason
}

// Validate checks a gas mix: every fraction must lie in [0, 1] and the
// fractions must not sum past 1.0 beyond GasMixTolerance.
func (m GasMix) Validate() []Violation {
	var violations []Violation
	fractions := []struct {
		field string
		value float64
	}{
		{"o2", m.O2},
		{"n2", m.N2},
		{"he", m.He},
	}
	for _, f := range fractions {
		if f.value < 0 || f.value > 1 {
			violations = append(violations, Violation{
				Field:  "mix " + m.Name + " " + f.field,
				Reason: fmt.Sprintf("fraction %g outside [0, 1]", f.value),
			})
		}
	}
	if sum := m.O2 + m.N2 + m.He; sum > 1+GasMixTolerance {
		violations = append(violations, Violation{
			Field:  "mix " + m.Name,
			Reason: fmt.Sprintf("fractions sum to %g, exceeding 1.0", sum),
		})
	}
	return violations
}

// Validate checks a dive against the canonical-model invariants. An empty
// result means the dive is well formed. Parsers reject any dive with
// violations unless operating in lenient mode.
func Validate(d Dive) []Violation {
	var violations []Violation

	if d.Start.IsZero() {
		violations = append(violations, Violation{Field: "start", Reason: "missing start timestamp"})
	}
	if d.Duration < 0 {
		violations = append(violations, Violation{Field: "duration", Reason: fmt.Sprintf("negative duration %d", d.Duration)})
	}
	if d.MaxDepth < 0 {
		violations = append(violations, Violation{Field: "depth", Reason: fmt.Sprintf("negative max depth %g", d.MaxDepth)})
	}
	if d.AvgDepth < 0 {
		violations = append(violations, Violation{Field: "avg_depth", Reason: fmt.Sprintf("negative average depth %g", d.AvgDepth)})
	}
	for _, t := range []struct {
		field string
		value *float64
	}{
		{"water_temp", d.WaterTemp},
		{"air_temp", d.AirTemp},
		{"surface_temp", d.SurfaceTemp},
	} {
		if t.value != nil && *t.value < 0 {
			violations = append(violations, Violation{
				Field:  t.field,
				Reason: fmt.Sprintf("negative temperature %g", *t.value),
			})
		}
	}
	if d.PressureIn < 0 {
		violations = append(violations, Violation{Field: "pressure_in", Reason: "negative pressure"})
	}
	if d.PressureOut < 0 {
		violations = append(violations, Violation{Field: "pressure_out", Reason: "negative pressure"})
	}

	lastOffset := -1
	for i, s := range d.Samples {
		if s.Offset < lastOffset {
			violations = append(violations, Violation{
				Field:  fmt.Sprintf("samples[%d].offset", i),
				Reason: fmt.Sprintf("offset %d decreases from %d", s.Offset, lastOffset),
			})
		}
		lastOffset = s.Offset
		if s.Depth < 0 {
			violations = append(violations, Violation{
				Field:  fmt.Sprintf("samples[%d].depth", i),
				Reason: fmt.Sprintf("negative depth %g", s.Depth),
			})
		}
		if s.Temp != nil && *s.Temp < 0 {
			violations = append(violations, Violation{
				Field:  fmt.Sprintf("samples[%d].temp", i),
				Reason: fmt.Sprintf("negative temperature %g", *s.Temp),
			})
		}
		if s.Pressure != nil && *s.Pressure < 0 {
			violations = append(violations, Violation{
				Field:  fmt.Sprintf("samples[%d].pressure", i),
				Reason: fmt.Sprintf("negative pressure %g", *s.Pressure),
			})
		}
	}

	return violations
}

// Validate checks every mix and dive in the log, and that sample mix
// references resolve against the log's mix table.
func (l *DiveLog) Validate() []Violation {
	var violations []Violation
	for _, m := range l.Mixes {
		violations = append(violations, m.Validate()...)
	}
	for i, d := range l.Dives {
		for _, v := range Validate(d) {
			v.Field = fmt.Sprintf("dives[%d].%s", i, v.Field)
			violations = append(violations, v)
		}
		for j, s := range d.Samples {
			if s.Mix == "" {
				continue
			}
			if _, ok := l.MixByName(s.Mix); !ok {
				violations = append(violations, Violation{
					Field:  fmt.Sprintf("dives[%d].samples[%d].mix", i, j),
					Reason: fmt.Sprintf("unknown mix %q", s.Mix),
				})
			}
		}
	}
	return violations
}
