// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vchene/divelog-convert/pkg/types"
)

// ErrUnsupportedFormat is returned when no registered parser or
// serializer matches the requested format tag or file extension.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseError reports malformed or unrecognized input content. Location
// pinpoints the failing line, row, or element within the source.
type ParseError struct {
	Format   string
	Location string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: parsing %s: %s", e.Format, e.Location, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports input that was well formed but semantically
// invalid, carrying every violation found.
type ValidationError struct {
	Violations []types.Violation
}

func (e *ValidationError) Error() string {
	reasons := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		reasons[i] = v.String()
	}
	return "validation failed: " + strings.Join(reasons, "; ")
}

// SerializeError reports canonical data insufficient for the target
// format. DiveIndex is the position of the offending dive, or -1 when the
// failure concerns the log as a whole.
type SerializeError struct {
	Format    string
	DiveIndex int
	Reason    string
}

func (e *SerializeError) Error() string {
	if e.DiveIndex < 0 {
		return fmt.Sprintf("%s: serializing log: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("%s: serializing dive %d: %s", e.Format, e.DiveIndex, e.Reason)
}
