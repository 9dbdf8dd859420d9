package syntax

import (
	"fmt"
	"strings"
)

// FindingCode classifies a non-fatal observation made while decoding or
// validating a file.
type FindingCode string

const (
	// FindingUnknownElement records a box or marker captured opaquely
	// because its code is not in the grammar. Deliberate tolerance, not
	// an error.
	FindingUnknownElement FindingCode = "UnknownElement"

	// FindingInvalidEnumeration records a field value outside its closed
	// set where the value does not drive further parsing; decoding
	// continued with the literal value.
	FindingInvalidEnumeration FindingCode = "InvalidEnumeration"

	// FindingSemanticInconsistency records a cross-cutting referential
	// check failure found after decode (component index out of range,
	// tile index outside the tile grid, misplaced EOC).
	FindingSemanticInconsistency FindingCode = "SemanticInconsistency"
)

// Finding is one non-fatal observation. Findings accompany a successful
// decode; they never replace the tree.
type Finding struct {
	Code   FindingCode
	Path   []string
	Offset int64
	Detail string
}

func (f Finding) String() string {
	if len(f.Path) == 0 {
		return fmt.Sprintf("%s at offset %d: %s", f.Code, f.Offset, f.Detail)
	}
	return fmt.Sprintf("%s at %s (offset %d): %s",
		f.Code, strings.Join(f.Path, "/"), f.Offset, f.Detail)
}
