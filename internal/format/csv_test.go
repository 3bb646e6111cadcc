// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vchene/divelog-convert/pkg/types"
)

const diviacDoc = `Dive #,Date,Location,Dive Site,lat,lng,Dive buddy,Weight,Time in,Duration,Max depth,Bottom temp,O2 %,Dive profile data
1,01-08-2023,"Dahab, Egypt",Lighthouse,28.5,34.5,Alice,4,09:30,45,18.2 m,21 °C,32%,"[[0,0,24,[],200],[30,10.5,22,[],195],[60,18.2,21,[""Ascent rate violation""],190]]"
`

func TestDiviacParse(t *testing.T) {
	f := NewDiviacCSV(types.DefaultConfig())

	log, err := f.Parse([]byte(diviacDoc), "dives.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(log.Dives) != 1 {
		t.Fatalf("dives = %d, want 1", len(log.Dives))
	}

	d := log.Dives[0]
	wantStart := time.Date(2023, 8, 1, 9, 30, 0, 0, time.UTC)
	if !d.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", d.Start, wantStart)
	}
	if d.Duration != 2700 {
		t.Errorf("duration = %d, want 2700", d.Duration)
	}
	if d.MaxDepth != 18.2 {
		t.Errorf("max depth = %g, want 18.2", d.MaxDepth)
	}
	if d.WaterTemp == nil || *d.WaterTemp != 21 {
		t.Errorf("water temp = %v, want 21", d.WaterTemp)
	}
	if d.Buddy != "Alice" {
		t.Errorf("buddy = %q, want Alice", d.Buddy)
	}
	if d.WeightKg != 4 {
		t.Errorf("weight = %d, want 4", d.WeightKg)
	}
	if d.Mix != "ean32" {
		t.Errorf("mix = %q, want ean32", d.Mix)
	}
	if d.Site.Name != "Lighthouse" || d.Site.City != "Dahab" || d.Site.Country != "Egypt" {
		t.Errorf("site = %+v", d.Site)
	}
	if d.Site.Lat == nil || *d.Site.Lat != 28.5 {
		t.Errorf("lat = %v, want 28.5", d.Site.Lat)
	}

	// Device defaults come from configuration; the export has no device.
	if d.Computer.Model != "SmartZ" || d.Computer.Serial != "123456" {
		t.Errorf("computer = %+v, want configured defaults", d.Computer)
	}

	if len(d.Samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(d.Samples))
	}
	if d.Samples[0].Mix != "ean32" {
		t.Errorf("first sample mix = %q, want ean32", d.Samples[0].Mix)
	}
	if d.Computer.SamplingPeriod != 30 {
		t.Errorf("sampling period = %d, want 30", d.Computer.SamplingPeriod)
	}
	if !hasAlarm(d.Samples[2].Alarms, types.AlarmAscent) {
		t.Error("third sample should carry the ascent alarm")
	}
	if !hasAlarm(d.Alarms, types.AlarmAscent) {
		t.Error("dive should summarize the ascent alarm")
	}
}

func TestDiviacParseBadRow(t *testing.T) {
	f := NewDiviacCSV(types.DefaultConfig())
	doc := diviacDoc + "2,,,,,,,,,,,,,\n"

	// Strict: the whole parse fails on the row missing its date.
	_, err := f.Parse([]byte(doc), "dives.csv", DefaultOptions())
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("strict parse error = %v, want *ParseError", err)
	}
	if perr.Location != "row 3" {
		t.Errorf("location = %q, want row 3", perr.Location)
	}

	// Lenient: one dive parsed, exactly one skip reported.
	log, err := f.Parse([]byte(doc), "dives.csv", Options{})
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if len(log.Dives) != 1 {
		t.Errorf("dives = %d, want 1", len(log.Dives))
	}
	if len(log.Source.Skipped) != 1 {
		t.Fatalf("skipped = %v, want one note", log.Source.Skipped)
	}
	if !strings.Contains(log.Source.Skipped[0], "row 3") {
		t.Errorf("skip note = %q, want row reference", log.Source.Skipped[0])
	}
}

func TestDiviacParseBadProfileValue(t *testing.T) {
	f := NewDiviacCSV(types.DefaultConfig())
	doc := diviacDoc +
		`2,02-08-2023,,,,,,,10:30,40,15 m,,21%,"[[0,""abc"",null,[],null]]"` + "\n"

	// Strict: a non-numeric depth inside the profile fails the row
	// instead of being read as zero.
	_, err := f.Parse([]byte(doc), "dives.csv", DefaultOptions())
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("strict parse error = %v, want *ParseError", err)
	}
	if perr.Location != "row 3" {
		t.Errorf("location = %q, want row 3", perr.Location)
	}
	if !strings.Contains(err.Error(), "non-numeric") {
		t.Errorf("error = %v, want non-numeric value cause", err)
	}

	// Lenient: the bad row is skipped, the good one survives.
	log, err := f.Parse([]byte(doc), "dives.csv", Options{})
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if len(log.Dives) != 1 {
		t.Errorf("dives = %d, want 1", len(log.Dives))
	}
	if len(log.Source.Skipped) != 1 || !strings.Contains(log.Source.Skipped[0], "row 3") {
		t.Errorf("skipped = %v, want one row 3 note", log.Source.Skipped)
	}

	// Empty strings and nulls still mean absent, not an error.
	okDoc := diviacDoc +
		`2,02-08-2023,,,,,,,10:30,40,15 m,,21%,"[[0,0,"""",[],null]]"` + "\n"
	log, err = f.Parse([]byte(okDoc), "dives.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := log.Dives[1].Samples[0]
	if s.Temp != nil || s.Pressure != nil {
		t.Errorf("sample = %+v, want absent temp and pressure", s)
	}
}

func TestDiviacColumnOverride(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.CSVColumns = map[string]string{"buddy": "Partner"}
	f := NewDiviacCSV(cfg)

	doc := strings.Replace(diviacDoc, "Dive buddy", "Partner", 1)
	log, err := f.Parse([]byte(doc), "dives.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if log.Dives[0].Buddy != "Alice" {
		t.Errorf("buddy = %q, want Alice via column override", log.Dives[0].Buddy)
	}
}

func TestDiviacRoundTrip(t *testing.T) {
	f := NewDiviacCSV(types.DefaultConfig())

	first, err := f.Parse([]byte(diviacDoc), "dives.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := f.Serialize(first, DefaultOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	second, err := f.Parse(data, "roundtrip.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}

	if !reflect.DeepEqual(first.Dives, second.Dives) {
		t.Errorf("round trip changed dives:\nfirst:  %+v\nsecond: %+v", first.Dives, second.Dives)
	}
	if !reflect.DeepEqual(first.Mixes, second.Mixes) {
		t.Errorf("round trip changed mixes: %+v vs %+v", first.Mixes, second.Mixes)
	}
}

func TestDiviacSerializeHeader(t *testing.T) {
	f := NewDiviacCSV(types.DefaultConfig())
	data, err := f.Serialize(&types.DiveLog{}, DefaultOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	header := strings.SplitN(string(data), "\n", 2)[0]
	if !strings.HasPrefix(header, "Dive #,Date,") {
		t.Errorf("header = %q", header)
	}
	if !strings.Contains(header, "Dive profile data") {
		t.Errorf("header should include the profile column: %q", header)
	}
}

func TestParseUnitValue(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		present bool
		wantErr bool
	}{
		{"18.2 m", 18.2, true, false},
		{"24 °C", 24, true, false},
		{"200 bar", 200, true, false},
		{"12", 12, true, false},
		{"", 0, false, false},
		{"deep", 0, false, true},
	}
	for _, tt := range tests {
		got, err := parseUnitValue(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseUnitValue(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUnitValue(%q): %v", tt.in, err)
			continue
		}
		if tt.present != (got != nil) {
			t.Errorf("parseUnitValue(%q) presence = %v, want %v", tt.in, got != nil, tt.present)
			continue
		}
		if got != nil && *got != tt.want {
			t.Errorf("parseUnitValue(%q) = %g, want %g", tt.in, *got, tt.want)
		}
	}
}

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		in                      string
		city, province, country string
	}{
		{"", "", "", ""},
		{"Dahab", "Dahab", "", ""},
		{"Dahab, Egypt", "Dahab", "", "Egypt"},
		{"Dahab, South Sinai, Egypt", "Dahab", "South Sinai", "Egypt"},
	}
	for _, tt := range tests {
		city, province, country := splitLocation(tt.in)
		if city != tt.city || province != tt.province || country != tt.country {
			t.Errorf("splitLocation(%q) = %q/%q/%q, want %q/%q/%q",
				tt.in, city, province, country, tt.city, tt.province, tt.country)
		}
	}
}
