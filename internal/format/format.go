// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package format implements the dive-log format codecs: parsers that read
// each supported interchange format into the canonical model, serializers
// that write the canonical model back out, and the registry that selects
// them by format tag or file extension.
package format

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vchene/divelog-convert/pkg/types"
)

// Parser reads one input source into a canonical DiveLog. Parse is
// atomic for its source: on error no partial DiveLog is returned.
type Parser interface {
	// Name returns the format tag, e.g. "uddf".
	Name() string
	// Extensions lists the file extensions the format is inferred from,
	// lowercase with leading dot.
	Extensions() []string
	// Parse decodes data read from source into a DiveLog.
	Parse(data []byte, source string, opts Options) (*types.DiveLog, error)
}

// Serializer writes a canonical DiveLog into one output document.
// Serialization is deterministic: identical logs with identical
// configuration produce byte-identical output.
type Serializer interface {
	Name() string
	Extensions() []string
	Serialize(log *types.DiveLog, opts Options) ([]byte, error)
}

// Unit is one output file produced by a serializer. Name discriminates
// units of a multi-unit export; it is empty for single-document formats.
type Unit struct {
	Name string
	Data []byte
}

// MultiSerializer is implemented by serializers whose format holds one
// export unit per dive. The caller bundles or writes the units.
type MultiSerializer interface {
	Serializer
	SerializeEach(log *types.DiveLog, opts Options) ([]Unit, error)
}

// Options carries the cross-cutting parse/serialize settings. Strict mode
// turns every recoverable condition into a hard failure; lenient mode
// downgrades per-record issues to skip-and-continue, noting each skip on
// the log's provenance and on the Warnings writer.
type Options struct {
	Strict   bool
	Warnings io.Writer
}

// DefaultOptions returns strict-mode options.
func DefaultOptions() Options {
	return Options{Strict: true}
}

// Warnf writes one warning line to the Warnings writer, if set.
func (o Options) Warnf(format string, args ...any) {
	if o.Warnings == nil {
		return
	}
	fmt.Fprintf(o.Warnings, "warning: "+format+"\n", args...)
}

// newLog builds an empty DiveLog with provenance for one parser invocation.
func newLog(formatName, source string) *types.DiveLog {
	return &types.DiveLog{
		Source: types.Provenance{
			ID:     uuid.NewString(),
			Format: formatName,
			Source: source,
		},
	}
}

// Registry holds the registered parsers and serializers in lookup order.
// It is built once at startup and read-only afterwards, so concurrent
// conversions can share it.
type Registry struct {
	parsers     []Parser
	serializers []Serializer
}

// NewRegistry returns a registry with the full codec set for cfg.
// Parser order matters: for the shared ".zxu" extension the plain DL7
// codec is tried before the diverlog variant.
func NewRegistry(cfg types.Config) *Registry {
	r := &Registry{}
	r.RegisterParser(NewDiviacCSV(cfg))
	r.RegisterParser(NewUDDF(cfg))
	r.RegisterParser(NewDL7(cfg))
	r.RegisterParser(NewDiverlog(cfg))
	r.RegisterSerializer(NewDiviacCSV(cfg))
	r.RegisterSerializer(NewUDDF(cfg))
	r.RegisterSerializer(NewDL7(cfg))
	r.RegisterSerializer(NewDiverlog(cfg))
	return r
}

// RegisterParser appends a parser to the lookup order.
func (r *Registry) RegisterParser(p Parser) {
	r.parsers = append(r.parsers, p)
}

// RegisterSerializer appends a serializer to the lookup order.
func (r *Registry) RegisterSerializer(s Serializer) {
	r.serializers = append(r.serializers, s)
}

// Parsers returns the registered parsers in lookup order.
func (r *Registry) Parsers() []Parser { return r.parsers }

// Serializers returns the registered serializers in lookup order.
func (r *Registry) Serializers() []Serializer { return r.serializers }

// ParserFor selects a parser by explicit tag, or by the extension of path
// when tag is empty.
func (r *Registry) ParserFor(tag, path string) (Parser, error) {
	for _, p := range r.parsers {
		if matches(tag, path, p.Name(), p.Extensions()) {
			return p, nil
		}
	}
	return nil, lookupError("parser", tag, path)
}

// SerializerFor selects a serializer by explicit tag, or by the extension
// of path when tag is empty.
func (r *Registry) SerializerFor(tag, path string) (Serializer, error) {
	for _, s := range r.serializers {
		if matches(tag, path, s.Name(), s.Extensions()) {
			return s, nil
		}
	}
	return nil, lookupError("serializer", tag, path)
}

func matches(tag, path, name string, exts []string) bool {
	if tag != "" {
		return tag == name
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

func lookupError(kind, tag, path string) error {
	if tag != "" {
		return fmt.Errorf("no %s for format %q: %w", kind, tag, ErrUnsupportedFormat)
	}
	return fmt.Errorf("no %s for file %q: %w", kind, path, ErrUnsupportedFormat)
}
