// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/vchene/divelog-convert/pkg/types"
)

func TestRegistryParserFor(t *testing.T) {
	reg := NewRegistry(types.DefaultConfig())

	tests := []struct {
		name    string
		tag     string
		path    string
		want    string
		wantErr bool
	}{
		{name: "csv extension", path: "logbook.csv", want: "diviac"},
		{name: "uddf extension", path: "logbook.uddf", want: "uddf"},
		{name: "zxu extension", path: "dive_1.zxu", want: "dl7"},
		{name: "uppercase extension", path: "LOGBOOK.CSV", want: "diviac"},
		{name: "explicit tag wins over extension", tag: "diverlog", path: "whatever.csv", want: "diverlog"},
		{name: "unknown extension", path: "logbook.gpx", wantErr: true},
		{name: "unknown tag", tag: "subsurface", wantErr: true},
		{name: "no tag no extension", path: "logbook", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.ParserFor(tt.tag, tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParserFor: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("parser = %q, want %q", p.Name(), tt.want)
			}
		})
	}
}

func TestRegistrySerializerFor(t *testing.T) {
	reg := NewRegistry(types.DefaultConfig())

	s, err := reg.SerializerFor("uddf", "")
	if err != nil {
		t.Fatalf("SerializerFor: %v", err)
	}
	if s.Name() != "uddf" {
		t.Errorf("serializer = %q, want uddf", s.Name())
	}

	s, err = reg.SerializerFor("diverlog", "")
	if err != nil {
		t.Fatalf("SerializerFor: %v", err)
	}
	if _, ok := s.(MultiSerializer); !ok {
		t.Error("diverlog serializer should support per-dive units")
	}

	if _, err := reg.SerializerFor("gpx", ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRegistryEnumeration(t *testing.T) {
	reg := NewRegistry(types.DefaultConfig())

	var parsers []string
	for _, p := range reg.Parsers() {
		parsers = append(parsers, p.Name())
	}
	want := []string{"diviac", "uddf", "dl7", "diverlog"}
	if strings.Join(parsers, " ") != strings.Join(want, " ") {
		t.Errorf("parsers = %v, want %v", parsers, want)
	}
	if len(reg.Serializers()) != 4 {
		t.Errorf("serializers = %d, want 4", len(reg.Serializers()))
	}
}

func TestDefaultOptionsStrict(t *testing.T) {
	if !DefaultOptions().Strict {
		t.Error("default options should be strict")
	}
}

func TestOptionsWarnf(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Warnings: &buf}
	opts.Warnf("dive %d skipped", 3)
	if got := buf.String(); got != "warning: dive 3 skipped\n" {
		t.Errorf("warning = %q", got)
	}

	// A nil writer drops warnings silently.
	Options{}.Warnf("ignored")
}

func TestParseErrorUnwrap(t *testing.T) {
	inner := errors.New("bad number")
	err := &ParseError{Format: "dl7", Location: "line 4", Reason: "malformed sample", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("ParseError should unwrap to its cause")
	}
	msg := err.Error()
	for _, want := range []string{"dl7", "line 4", "malformed sample", "bad number"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestSerializeErrorMessage(t *testing.T) {
	whole := &SerializeError{Format: "diverlog", DiveIndex: -1, Reason: "empty log"}
	if !strings.Contains(whole.Error(), "serializing log") {
		t.Errorf("message = %q", whole.Error())
	}
	one := &SerializeError{Format: "diverlog", DiveIndex: 2, Reason: "missing device"}
	if !strings.Contains(one.Error(), "dive 2") {
		t.Errorf("message = %q", one.Error())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Violations: []types.Violation{
		{Field: "depth", Reason: "negative max depth -1"},
		{Field: "duration", Reason: "negative duration -60"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "depth: negative max depth -1") ||
		!strings.Contains(msg, "duration: negative duration -60") {
		t.Errorf("message = %q", msg)
	}
}
