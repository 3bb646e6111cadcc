// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vchene/divelog-convert/pkg/types"
)

const dl7Doc = `FSH|^~<>{}|ABC123^^|ZXU|20260301120000|
ZRH|^~<>{}|SmartZ|123456|MSWG|ThM|C|bar|L|
ZAR{}
ZDH|42|42|I|Q30S|20230801093000|24||PO2|
ZDP{
|0|0|1||F|F||24||200|
|0.5|10.5|||F|F||22||195|
|1|18.2|2.32||T|F||21||190|
ZDP}
ZDT|42|42|18.2|20230801100000|21|10|
`

func TestDL7Parse(t *testing.T) {
	f := NewDL7(types.DefaultConfig())

	log, err := f.Parse([]byte(dl7Doc), "dives.zxu", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(log.Dives) != 1 {
		t.Fatalf("dives = %d, want 1", len(log.Dives))
	}

	d := log.Dives[0]
	if d.Number != 42 {
		t.Errorf("number = %d, want 42", d.Number)
	}
	wantStart := time.Date(2023, 8, 1, 9, 30, 0, 0, time.UTC)
	if !d.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", d.Start, wantStart)
	}
	if d.Duration != 1800 {
		t.Errorf("duration = %d, want 1800", d.Duration)
	}
	if d.MaxDepth != 18.2 {
		t.Errorf("max depth = %g, want 18.2", d.MaxDepth)
	}
	if d.WaterTemp == nil || *d.WaterTemp != 21 {
		t.Errorf("water temp = %v, want 21", d.WaterTemp)
	}
	if d.AirTemp == nil || *d.AirTemp != 24 {
		t.Errorf("air temp = %v, want 24", d.AirTemp)
	}
	if d.Computer.Model != "SmartZ" || d.Computer.Serial != "123456" {
		t.Errorf("computer = %+v, want SmartZ/123456", d.Computer)
	}
	if d.Computer.SamplingPeriod != 30 {
		t.Errorf("sampling period = %d, want 30", d.Computer.SamplingPeriod)
	}
	if d.Mix != "air" {
		t.Errorf("mix = %q, want air", d.Mix)
	}

	if len(d.Samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(d.Samples))
	}
	if d.Samples[0].Mix != "air" {
		t.Errorf("sample 0 mix = %q, want air", d.Samples[0].Mix)
	}
	if d.Samples[1].Offset != 30 || d.Samples[1].Depth != 10.5 {
		t.Errorf("sample 1 = %+v, want offset 30 depth 10.5", d.Samples[1])
	}
	if d.Samples[1].Mix != "" {
		t.Errorf("sample 1 mix = %q, want empty (unchanged)", d.Samples[1].Mix)
	}
	if d.Samples[2].Mix != "ean32" {
		t.Errorf("sample 2 mix = %q, want ean32", d.Samples[2].Mix)
	}
	if !hasAlarm(d.Samples[2].Alarms, types.AlarmAscent) {
		t.Error("sample 2 should carry the ascent alarm")
	}
	if !hasAlarm(d.Alarms, types.AlarmAscent) {
		t.Error("dive should summarize the ascent alarm")
	}

	if len(log.Mixes) != 2 {
		t.Errorf("mixes = %d, want 2 (air, ean32)", len(log.Mixes))
	}
}

func TestDL7ParseUnknownTag(t *testing.T) {
	f := NewDL7(types.DefaultConfig())
	doc := "XXX|1|\n" + dl7Doc

	// Strict mode fails the whole parse.
	_, err := f.Parse([]byte(doc), "dives.zxu", DefaultOptions())
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("strict parse error = %v, want *ParseError", err)
	}
	if perr.Location != "line 1" {
		t.Errorf("location = %q, want line 1", perr.Location)
	}

	// Lenient mode skips the line with a note and a warning.
	var warnings bytes.Buffer
	log, err := f.Parse([]byte(doc), "dives.zxu", Options{Warnings: &warnings})
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if len(log.Dives) != 1 {
		t.Errorf("dives = %d, want 1", len(log.Dives))
	}
	if len(log.Source.Skipped) != 1 {
		t.Fatalf("skipped = %v, want one note", log.Source.Skipped)
	}
	if !strings.Contains(log.Source.Skipped[0], "unrecognized tag") {
		t.Errorf("skip note = %q", log.Source.Skipped[0])
	}
	if !strings.Contains(warnings.String(), "warning:") {
		t.Errorf("warnings = %q, want a warning line", warnings.String())
	}
}

func TestDL7ParseMalformedSample(t *testing.T) {
	f := NewDL7(types.DefaultConfig())
	doc := strings.Replace(dl7Doc, "|0.5|10.5|", "|bad|10.5|", 1)

	if _, err := f.Parse([]byte(doc), "dives.zxu", DefaultOptions()); err == nil {
		t.Fatal("strict parse of malformed sample should fail")
	}

	log, err := f.Parse([]byte(doc), "dives.zxu", Options{})
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if len(log.Dives) != 1 || len(log.Dives[0].Samples) != 2 {
		t.Errorf("lenient parse should keep the dive with 2 samples, got %+v", log.Dives)
	}
}

// fixedClock returns a deterministic Now substitute.
func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func testLog() *types.DiveLog {
	temp24, temp22, temp21 := 24.0, 22.0, 21.0
	p200, p190 := 200.0, 190.0
	log := &types.DiveLog{
		Mixes: []types.GasMix{types.Air()},
		Dives: []types.Dive{{
			ID:        "dive-1",
			Number:    1,
			Start:     time.Date(2023, 8, 1, 9, 30, 0, 0, time.UTC),
			Duration:  1800,
			MaxDepth:  18,
			WaterTemp: &temp21,
			AirTemp:   &temp24,
			Mix:       "air",
			Computer: types.Computer{
				Manufacturer:   "Uwatec",
				Model:          "SmartZ",
				Serial:         "123456",
				SamplingPeriod: 30,
			},
			Samples: []types.Sample{
				{Offset: 0, Depth: 0, Mix: "air", Temp: &temp24, Pressure: &p200},
				{Offset: 30, Depth: 10, Temp: &temp22},
				{Offset: 60, Depth: 18, Temp: &temp21, Pressure: &p190},
			},
		}},
	}
	return log
}

func TestDL7SerializeDeterministic(t *testing.T) {
	f := NewDL7(types.DefaultConfig())
	f.Now = fixedClock

	first, err := f.Serialize(testLog(), DefaultOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	second, err := f.Serialize(testLog(), DefaultOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("serialization with a fixed clock should be byte-identical")
	}
	if !strings.HasPrefix(string(first), "FSH|^~<>{}|ABC123^^|ZXU|20260301120000|\n") {
		t.Errorf("unexpected file header:\n%s", first)
	}
}

func TestDL7RoundTrip(t *testing.T) {
	f := NewDL7(types.DefaultConfig())
	f.Now = fixedClock

	data, err := f.Serialize(testLog(), DefaultOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	log, err := f.Parse(data, "roundtrip.zxu", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := testLog().Dives[0]
	if len(log.Dives) != 1 {
		t.Fatalf("dives = %d, want 1", len(log.Dives))
	}
	got := log.Dives[0]

	if !got.Start.Equal(want.Start) {
		t.Errorf("start = %v, want %v", got.Start, want.Start)
	}
	if got.Duration != want.Duration {
		t.Errorf("duration = %d, want %d", got.Duration, want.Duration)
	}
	if got.MaxDepth != want.MaxDepth {
		t.Errorf("max depth = %g, want %g", got.MaxDepth, want.MaxDepth)
	}
	if got.Computer.Model != want.Computer.Model || got.Computer.Serial != want.Computer.Serial {
		t.Errorf("computer = %+v, want %+v", got.Computer, want.Computer)
	}
	if got.Computer.SamplingPeriod != 30 {
		t.Errorf("sampling period = %d, want 30", got.Computer.SamplingPeriod)
	}
	if len(got.Samples) != len(want.Samples) {
		t.Fatalf("samples = %d, want %d", len(got.Samples), len(want.Samples))
	}
	for i := range want.Samples {
		if got.Samples[i].Offset != want.Samples[i].Offset {
			t.Errorf("sample %d offset = %d, want %d", i, got.Samples[i].Offset, want.Samples[i].Offset)
		}
		if got.Samples[i].Depth != want.Samples[i].Depth {
			t.Errorf("sample %d depth = %g, want %g", i, got.Samples[i].Depth, want.Samples[i].Depth)
		}
	}
	if got.Mix != "air" {
		t.Errorf("mix = %q, want air", got.Mix)
	}
}

func TestDL7GasTokenHelium(t *testing.T) {
	f := NewDL7(types.DefaultConfig())
	f.Now = fixedClock

	log := testLog()
	log.Mixes = append(log.Mixes, types.GasMix{Name: "tx18/45", O2: 0.18, N2: 0.37, He: 0.45})
	log.Dives[0].Mix = "tx18/45"
	log.Dives[0].Samples[0].Mix = "tx18/45"

	var warnings bytes.Buffer
	data, err := f.Serialize(log, Options{Strict: true, Warnings: &warnings})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.Contains(warnings.String(), "unsupported gas") {
		t.Errorf("warnings = %q, want an unsupported gas warning", warnings.String())
	}
	// Helium is truncated: the gas column carries the O2 fraction only.
	if !strings.Contains(string(data), "|2.18|") {
		t.Errorf("output should encode the mix as 2.18:\n%s", data)
	}
}

func TestDL7SerializeUnknownMix(t *testing.T) {
	f := NewDL7(types.DefaultConfig())
	log := testLog()
	log.Dives[0].Samples[0].Mix = "missing"

	_, err := f.Serialize(log, DefaultOptions())
	var serr *SerializeError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *SerializeError", err)
	}
	if serr.DiveIndex != 0 {
		t.Errorf("dive index = %d, want 0", serr.DiveIndex)
	}
}
