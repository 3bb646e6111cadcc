// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert orchestrates dive-log conversion: it expands archive
// inputs, dispatches each source to a parser from the registry, merges
// the parsed logs, and serializes the result in the requested format.
package convert

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vchene/divelog-convert/internal/archive"
	"github.com/vchene/divelog-convert/internal/format"
	"github.com/vchene/divelog-convert/pkg/types"
)

// Input is one conversion source. Format is the explicit parser tag; when
// empty the parser is inferred from the Source extension.
type Input struct {
	Data   []byte
	Source string
	Format string
}

// Output is the result of one conversion run. Units holds one element for
// single-document output formats and one element per dive for multi-unit
// formats. Log is the merged canonical log the units were serialized from.
type Output struct {
	Units     []format.Unit
	Extension string
	Log       *types.DiveLog

	// Parsed and Skipped count input sources, after archive expansion.
	Parsed  int
	Skipped int
}

// Converter runs conversions against a fixed registry, configuration, and
// option set. A Converter is stateless across calls; independent
// conversions may run concurrently.
type Converter struct {
	reg  *format.Registry
	opts format.Options
}

// New returns a Converter using the given registry and options.
func New(reg *format.Registry, opts format.Options) *Converter {
	return &Converter{reg: reg, opts: opts}
}

// Convert parses every input, merges the results in input order, and
// serializes the merged log in outputFormat. Zip inputs are expanded into
// their member files first. In strict mode the first failing source aborts
// the conversion; in lenient mode failing sources are skipped with a
// warning, but a conversion where every source failed is still an error.
func (c *Converter) Convert(inputs []Input, outputFormat string) (*Output, error) {
	expanded, err := expand(inputs)
	if err != nil {
		return nil, err
	}
	if len(expanded) == 0 {
		return nil, errors.New("no inputs")
	}

	var (
		logs    []*types.DiveLog
		skipped int
	)
	for _, in := range expanded {
		log, err := c.parseOne(in)
		if err != nil {
			if c.opts.Strict {
				return nil, fmt.Errorf("parsing %s: %w", in.Source, err)
			}
			c.opts.Warnf("skipping %s: %v", in.Source, err)
			skipped++
			continue
		}
		logs = append(logs, log)
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("all %d inputs failed to parse", len(expanded))
	}

	merged, err := Merge(logs)
	if err != nil {
		return nil, err
	}

	s, err := c.reg.SerializerFor(outputFormat, "")
	if err != nil {
		return nil, err
	}
	units, err := serialize(s, merged, c.opts)
	if err != nil {
		return nil, fmt.Errorf("serializing as %s: %w", s.Name(), err)
	}

	return &Output{
		Units:     units,
		Extension: s.Extensions()[0],
		Log:       merged,
		Parsed:    len(logs),
		Skipped:   skipped,
	}, nil
}

func (c *Converter) parseOne(in Input) (*types.DiveLog, error) {
	p, err := c.reg.ParserFor(in.Format, in.Source)
	if err != nil {
		return nil, err
	}
	return p.Parse(in.Data, in.Source, c.opts)
}

// serialize picks the multi-unit path when the format requires one file
// per dive and the log has more than one.
func serialize(s format.Serializer, log *types.DiveLog, opts format.Options) ([]format.Unit, error) {
	if ms, ok := s.(format.MultiSerializer); ok && len(log.Dives) > 1 {
		return ms.SerializeEach(log, opts)
	}
	data, err := s.Serialize(log, opts)
	if err != nil {
		return nil, err
	}
	return []format.Unit{{Data: data}}, nil
}

// expand replaces each zip input with one Input per archive member. The
// explicit format tag, if any, carries over to the members.
func expand(inputs []Input) ([]Input, error) {
	var out []Input
	for _, in := range inputs {
		if !archive.IsArchive(in.Source) {
			out = append(out, in)
			continue
		}
		members, err := archive.Expand(in.Data)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", in.Source, err)
		}
		for _, m := range members {
			out = append(out, Input{Data: m.Data, Source: m.Name, Format: in.Format})
		}
	}
	return out, nil
}

// Merge combines parsed logs into a new DiveLog: dives concatenated in
// input order, mix tables unioned. The same mix name with different
// fractions across logs is a conflict and fails the merge. The input logs
// are not mutated.
func Merge(logs []*types.DiveLog) (*types.DiveLog, error) {
	if len(logs) == 0 {
		return nil, errors.New("nothing to merge")
	}

	merged := &types.DiveLog{
		Source: types.Provenance{
			ID:     uuid.NewString(),
			Format: logs[0].Source.Format,
			Source: logs[0].Source.Source,
		},
	}
	if len(logs) > 1 {
		merged.Source.Source = fmt.Sprintf("merge of %d sources", len(logs))
	}

	for _, log := range logs {
		for _, mix := range log.Mixes {
			if existing, ok := merged.MixByName(mix.Name); ok {
				if existing != mix {
					return nil, fmt.Errorf("merging %s: gas mix %q defined with conflicting fractions",
						log.Source.Source, mix.Name)
				}
				continue
			}
			merged.Mixes = append(merged.Mixes, mix)
		}
		merged.Dives = append(merged.Dives, log.Dives...)
		for _, note := range log.Source.Skipped {
			merged.Source.Skipped = append(merged.Source.Skipped,
				fmt.Sprintf("%s: %s", log.Source.Source, note))
		}
	}
	return merged, nil
}
