// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vchene/divelog-convert/pkg/types"
)

func diverlogTestLog() *types.DiveLog {
	log := testLog()
	second := log.Dives[0]
	second.ID = "dive-2"
	second.Number = 2
	second.Start = time.Date(2023, 8, 1, 14, 0, 0, 0, time.UTC)
	log.Dives = append(log.Dives, second)
	return log
}

func TestDiverlogSerializeEach(t *testing.T) {
	f := NewDiverlog(types.DefaultConfig())
	f.Now = fixedClock

	units, err := f.SerializeEach(diverlogTestLog(), DefaultOptions())
	if err != nil {
		t.Fatalf("SerializeEach: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2", len(units))
	}
	if units[0].Name != "1" || units[1].Name != "2" {
		t.Errorf("unit names = %q, %q; want 1, 2", units[0].Name, units[1].Name)
	}

	doc := string(units[0].Data)
	for _, want := range []string{
		"<AQUALUNG>",
		"<APP>DiverLog+</APP>",
		"<PDC_MODEL>SmartZ</PDC_MODEL>",
		"<PDC_SERIAL>123456</PDC_SERIAL>",
		"<DIVER_NAME>LASTNAME=[Vivien Chene]</DIVER_NAME>",
		"ZDH|1|1|I|Q30S|",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("unit 0 missing %s\n%s", want, doc)
		}
	}

	// Each unit parses back through the shared DL7 grammar; the AQUALUNG
	// block is opaque and skipped.
	for i, u := range units {
		log, err := f.Parse(u.Data, "unit.zxu", DefaultOptions())
		if err != nil {
			t.Fatalf("unit %d reparse: %v", i, err)
		}
		if len(log.Dives) != 1 {
			t.Errorf("unit %d dives = %d, want 1", i, len(log.Dives))
		}
	}
}

func TestDiverlogForcesSamplingPeriod(t *testing.T) {
	f := NewDiverlog(types.DefaultConfig())
	f.Now = fixedClock

	log := testLog()
	log.Dives[0].Computer.SamplingPeriod = 15

	units, err := f.SerializeEach(log, DefaultOptions())
	if err != nil {
		t.Fatalf("SerializeEach: %v", err)
	}
	if !strings.Contains(string(units[0].Data), "|Q30S|") {
		t.Errorf("header should declare the 30s period:\n%s", units[0].Data)
	}
}

func TestDiverlogRequiresDevice(t *testing.T) {
	f := NewDiverlog(types.DefaultConfig())
	log := testLog()
	log.Dives[0].Computer.Serial = ""

	_, err := f.SerializeEach(log, DefaultOptions())
	var serr *SerializeError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *SerializeError", err)
	}
	if serr.DiveIndex != 0 {
		t.Errorf("dive index = %d, want 0", serr.DiveIndex)
	}
}

func TestDiverlogSerializeSingleDiveOnly(t *testing.T) {
	f := NewDiverlog(types.DefaultConfig())
	f.Now = fixedClock

	if _, err := f.Serialize(testLog(), DefaultOptions()); err != nil {
		t.Errorf("single-dive Serialize: %v", err)
	}

	_, err := f.Serialize(diverlogTestLog(), DefaultOptions())
	var serr *SerializeError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *SerializeError", err)
	}
	if serr.DiveIndex != -1 {
		t.Errorf("dive index = %d, want -1 (whole log)", serr.DiveIndex)
	}
}
