// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the canonical dive-log model every format codec
// converts to and from, plus the validation rules that decide whether a
// parsed dive is well formed.
package types

import (
	"fmt"
	"math"
	"time"
)

// GasMixTolerance is the maximum amount by which the fractions of a gas
// mix may exceed 1.0 before the mix is rejected.
const GasMixTolerance = 0.001

// GasMix identifies a breathing gas used during part or all of a dive.
// Fractions are expressed in [0, 1]. Samples reference a mix by Name.
type GasMix struct {
	Name string  `json:"name" yaml:"name"`
	O2   float64 `json:"o2" yaml:"o2"`
	N2   float64 `json:"n2" yaml:"n2"`
	He   float64 `json:"he,omitempty" yaml:"he,omitempty"`
}

// Air returns the standard air mix.
func Air() GasMix {
	return GasMix{Name: "air", O2: 0.21, N2: 0.79}
}

// Nitrox returns an oxygen-enriched mix with the given O2 percentage.
// The nitrogen fraction is derived as the remainder.
func Nitrox(o2Percent int) GasMix {
	o2 := float64(o2Percent) / 100
	return GasMix{
		Name: fmt.Sprintf("ean%d", o2Percent),
		O2:   o2,
		N2:   1 - o2,
	}
}

// IsAir reports whether the mix is plain air.
func (m GasMix) IsAir() bool {
	return math.Abs(m.O2-0.21) < GasMixTolerance && m.He == 0
}

// O2Percent returns the oxygen fraction as an integer percentage.
func (m GasMix) O2Percent() int {
	return int(math.Round(m.O2 * 100))
}

// Alarm marks a profile event flagged by the dive computer.
type Alarm string

const (
	AlarmAscent  Alarm = "ascent"
	AlarmDeco    Alarm = "deco"
	AlarmSurface Alarm = "surface"
	AlarmError   Alarm = "error"
)

// Sample is one timestamped point within a dive profile. Samples are kept
// in chronological order; Offset must be non-decreasing across a dive.
type Sample struct {
	// Offset is the elapsed time since the start of the dive, in seconds.
	Offset int `json:"offset" yaml:"offset"`

	// Depth is the depth at this point, in meters.
	Depth float64 `json:"depth" yaml:"depth"`

	// Temp is the water temperature in degrees Celsius, when recorded.
	Temp *float64 `json:"temp,omitempty" yaml:"temp,omitempty"`

	// Pressure is the remaining tank pressure in bar, when recorded.
	Pressure *float64 `json:"pressure,omitempty" yaml:"pressure,omitempty"`

	// Mix names the gas mix breathed from this point on. Empty means the
	// mix is unchanged from the previous sample.
	Mix string `json:"mix,omitempty" yaml:"mix,omitempty"`

	// Alarms lists the computer alarms raised at this point.
	Alarms []Alarm `json:"alarms,omitempty" yaml:"alarms,omitempty"`
}

// Computer holds dive-computer metadata attached to a dive. All fields are
// optional; some target formats require Model and Serial.
type Computer struct {
	Manufacturer   string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	Serial         string `json:"serial,omitempty" yaml:"serial,omitempty"`
	Firmware       string `json:"firmware,omitempty" yaml:"firmware,omitempty"`
	SamplingPeriod int    `json:"sampling_period,omitempty" yaml:"sampling_period,omitempty"`
}

// Site describes where a dive took place. Coordinates are optional.
type Site struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Location string   `json:"location,omitempty" yaml:"location,omitempty"`
	City     string   `json:"city,omitempty" yaml:"city,omitempty"`
	Province string   `json:"province,omitempty" yaml:"province,omitempty"`
	Country  string   `json:"country,omitempty" yaml:"country,omitempty"`
	Lat      *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
}

// IsZero reports whether no site information is present.
func (s Site) IsZero() bool {
	return s == Site{}
}

// Dive is one logged dive. A dive may carry summary data only (nil
// Samples) or a full profile.
type Dive struct {
	// ID is the source-assigned identifier, or one generated by the
	// parser when the source does not assign any.
	ID string `json:"id" yaml:"id"`

	// Number is the dive's sequence position within the exporting source.
	Number int `json:"number,omitempty" yaml:"number,omitempty"`

	// Start is the dive start timestamp, timezone-naive unless the
	// source supplied an offset.
	Start time.Time `json:"start" yaml:"start"`

	// Duration is the dive duration in seconds.
	Duration int `json:"duration" yaml:"duration"`

	// MaxDepth and AvgDepth are in meters.
	MaxDepth float64 `json:"max_depth" yaml:"max_depth"`
	AvgDepth float64 `json:"avg_depth,omitempty" yaml:"avg_depth,omitempty"`

	// Temperatures are in degrees Celsius. WaterTemp is the lowest
	// temperature recorded during the dive.
	WaterTemp   *float64 `json:"water_temp,omitempty" yaml:"water_temp,omitempty"`
	AirTemp     *float64 `json:"air_temp,omitempty" yaml:"air_temp,omitempty"`
	SurfaceTemp *float64 `json:"surface_temp,omitempty" yaml:"surface_temp,omitempty"`

	Site  Site   `json:"site,omitempty" yaml:"site,omitempty"`
	Buddy string `json:"buddy,omitempty" yaml:"buddy,omitempty"`

	// Mix names the primary gas mix from the log's mix table.
	Mix string `json:"mix,omitempty" yaml:"mix,omitempty"`

	// Tank pressures are in bar.
	PressureIn  float64 `json:"pressure_in,omitempty" yaml:"pressure_in,omitempty"`
	PressureOut float64 `json:"pressure_out,omitempty" yaml:"pressure_out,omitempty"`
	TankName    string  `json:"tank_name,omitempty" yaml:"tank_name,omitempty"`
	TankVolume  int     `json:"tank_volume,omitempty" yaml:"tank_volume,omitempty"`

	WeightKg int    `json:"weight_kg,omitempty" yaml:"weight_kg,omitempty"`
	Rating   int    `json:"rating,omitempty" yaml:"rating,omitempty"`
	Notes    string `json:"notes,omitempty" yaml:"notes,omitempty"`

	Computer Computer `json:"computer,omitempty" yaml:"computer,omitempty"`

	// Alarms summarizes the alarms raised anywhere in the profile.
	Alarms []Alarm `json:"alarms,omitempty" yaml:"alarms,omitempty"`

	// Samples is the profile, in chronological order, or nil for
	// summary-only dives.
	Samples []Sample `json:"samples,omitempty" yaml:"samples,omitempty"`
}

// End returns the dive end timestamp.
func (d Dive) End() time.Time {
	return d.Start.Add(time.Duration(d.Duration) * time.Second)
}

// DurationMin returns the dive duration in whole minutes.
func (d Dive) DurationMin() int {
	return d.Duration / 60
}

// Provenance records which parser produced a DiveLog and from what source.
type Provenance struct {
	// ID uniquely identifies this parse; generated per invocation.
	ID string `json:"id" yaml:"id"`

	// Format is the name of the parser that produced the log.
	Format string `json:"format" yaml:"format"`

	// Source is the original file name or identifier.
	Source string `json:"source" yaml:"source"`

	// Skipped lists per-record issues downgraded to skips in lenient
	// mode, one human-readable note each.
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// DiveLog is an ordered collection of dives plus the gas-mix table their
// samples reference. A DiveLog is built by a single parser invocation and
// treated as immutable once returned; merging builds a new DiveLog.
type DiveLog struct {
	Mixes  []GasMix   `json:"mixes,omitempty" yaml:"mixes,omitempty"`
	Dives  []Dive     `json:"dives" yaml:"dives"`
	Source Provenance `json:"source" yaml:"source"`
}

// MixByName returns the named mix from the table, if present.
func (l *DiveLog) MixByName(name string) (GasMix, bool) {
	for _, m := range l.Mixes {
		if m.Name == name {
			return m, true
		}
	}
	return GasMix{}, false
}

// AddMix inserts a mix into the table unless a mix with the same name is
// already present, and returns the mix under that name.
func (l *DiveLog) AddMix(m GasMix) GasMix {
	if existing, ok := l.MixByName(m.Name); ok {
		return existing
	}
	l.Mixes = append(l.Mixes, m)
	return m
}
