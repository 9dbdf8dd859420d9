package validation

import (
	"strings"
	"testing"

	"github.com/cocosip/go-jp2-syntax/syntax"
)

func uintField(name string, width int, v uint64) *syntax.Field {
	return &syntax.Field{Name: name, Kind: syntax.KindUint, Width: width, Uint: v}
}

func sizSegment(xsiz, ysiz uint64, csiz uint64) *syntax.Segment {
	return &syntax.Segment{
		Marker: 0xFF51,
		Name:   "SIZ",
		Members: []syntax.Node{
			uintField("Rsiz", 2, 0),
			uintField("Xsiz", 4, xsiz),
			uintField("Ysiz", 4, ysiz),
			uintField("XOsiz", 4, 0),
			uintField("YOsiz", 4, 0),
			uintField("XTsiz", 4, xsiz),
			uintField("YTsiz", 4, ysiz),
			uintField("XTOsiz", 4, 0),
			uintField("YTOsiz", 4, 0),
			uintField("Csiz", 2, csiz),
		},
	}
}

func sotGroup(isot, tpsot, tnsot uint64) *syntax.Group {
	return &syntax.Group{
		Name: "tile_part",
		Members: []syntax.Node{
			&syntax.Segment{
				Marker: 0xFF90,
				Name:   "SOT",
				Members: []syntax.Node{
					uintField("Isot", 2, isot),
					uintField("Psot", 4, 20),
					uintField("TPsot", 1, tpsot),
					uintField("TNsot", 1, tnsot),
				},
			},
		},
	}
}

func ihdrBox(height, width, components uint64) *syntax.Container {
	return &syntax.Container{
		Type: "ihdr",
		Children: []syntax.Node{
			uintField("height", 4, height),
			uintField("width", 4, width),
			uintField("num_components", 2, components),
			uintField("bits_per_component", 1, 7),
			uintField("compression_type", 1, 7),
		},
	}
}

func consistentFile() []syntax.Node {
	return []syntax.Node{
		&syntax.Container{Type: "jP  "},
		&syntax.Container{Type: "ftyp", Children: []syntax.Node{
			&syntax.Field{Name: "brand", Kind: syntax.KindFourCC, Str: "jp2 "},
		}},
		&syntax.Container{Type: "jp2h", Children: []syntax.Node{
			ihdrBox(128, 256, 1),
			&syntax.Container{Type: "colr"},
		}},
		&syntax.Container{Type: "jp2c", Children: []syntax.Node{
			sizSegment(256, 128, 1),
			sotGroup(0, 0, 1),
		}},
	}
}

func detailContains(findings []syntax.Finding, substr string) bool {
	for _, f := range findings {
		if strings.Contains(f.Detail, substr) {
			return true
		}
	}
	return false
}

func TestValidateConsistentFile(t *testing.T) {
	if findings := Validate(consistentFile()); len(findings) != 0 {
		t.Errorf("unexpected findings: %v", findings)
	}
}

func TestValidateBrand(t *testing.T) {
	boxes := consistentFile()
	boxes[1] = &syntax.Container{Type: "ftyp", Children: []syntax.Node{
		&syntax.Field{Name: "brand", Kind: syntax.KindFourCC, Str: "jpx "},
		&syntax.Field{Name: "compatibility", Kind: syntax.KindFourCC, Str: "jpx "},
	}}
	if !detailContains(Validate(boxes), "jp2 ") {
		t.Error("foreign brand without jp2 compatibility not flagged")
	}

	// A jp2 entry in the compatibility list is enough.
	boxes[1] = &syntax.Container{Type: "ftyp", Children: []syntax.Node{
		&syntax.Field{Name: "brand", Kind: syntax.KindFourCC, Str: "jpx "},
		&syntax.Field{Name: "compatibility", Kind: syntax.KindFourCC, Str: "jp2 "},
	}}
	if detailContains(Validate(boxes), "jp2 ") {
		t.Error("compatible file flagged")
	}
}

func TestValidateHeaderShape(t *testing.T) {
	boxes := consistentFile()
	// colr before ihdr.
	boxes[2] = &syntax.Container{Type: "jp2h", Children: []syntax.Node{
		&syntax.Container{Type: "colr"},
		ihdrBox(128, 256, 1),
	}}
	if !detailContains(Validate(boxes), "first") {
		t.Error("misplaced image header not flagged")
	}

	// No colour specification.
	boxes[2] = &syntax.Container{Type: "jp2h", Children: []syntax.Node{
		ihdrBox(128, 256, 1),
	}}
	if !detailContains(Validate(boxes), "colour") {
		t.Error("missing colour specification not flagged")
	}
}

func TestValidateDeferredDepths(t *testing.T) {
	boxes := consistentFile()
	ihdr := ihdrBox(128, 256, 1)
	ihdr.Children[3] = uintField("bits_per_component", 1, 0xFF)
	boxes[2] = &syntax.Container{Type: "jp2h", Children: []syntax.Node{
		ihdr,
		&syntax.Container{Type: "colr"},
	}}
	if !detailContains(Validate(boxes), "bpcc") {
		t.Error("missing bpcc box not flagged")
	}
}

func TestValidateGeometryMismatch(t *testing.T) {
	boxes := consistentFile()
	boxes[2] = &syntax.Container{Type: "jp2h", Children: []syntax.Node{
		ihdrBox(100, 256, 2),
		&syntax.Container{Type: "colr"},
	}}
	findings := Validate(boxes)
	if !detailContains(findings, "component count") {
		t.Error("component count mismatch not flagged")
	}
	if !detailContains(findings, "height") {
		t.Error("height mismatch not flagged")
	}
}

func TestValidateComponentIndexRange(t *testing.T) {
	boxes := consistentFile()
	cs := boxes[3].(*syntax.Container)
	cs.Children = append(cs.Children, &syntax.Segment{
		Marker: 0xFF5D,
		Name:   "QCC",
		Members: []syntax.Node{
			uintField("Cqcc", 1, 4), // only 1 component declared
		},
	})
	if !detailContains(Validate(boxes), "out of range") {
		t.Error("out-of-range component index not flagged")
	}
}

func TestValidateTilePartSequencing(t *testing.T) {
	boxes := consistentFile()
	cs := boxes[3].(*syntax.Container)

	// Tile index beyond the 1x1 grid.
	cs.Children = []syntax.Node{
		sizSegment(256, 128, 1),
		sotGroup(5, 0, 1),
	}
	if !detailContains(Validate(boxes), "grid") {
		t.Error("out-of-grid tile index not flagged")
	}

	// Tile-part indices skipping a value.
	cs.Children = []syntax.Node{
		sizSegment(256, 128, 1),
		sotGroup(0, 0, 3),
		sotGroup(0, 2, 3),
	}
	if !detailContains(Validate(boxes), "expected 1") {
		t.Error("skipped tile-part index not flagged")
	}

	// Two parts present, three declared.
	cs.Children = []syntax.Node{
		sizSegment(256, 128, 1),
		sotGroup(0, 0, 3),
		sotGroup(0, 1, 3),
	}
	if !detailContains(Validate(boxes), "declared") {
		t.Error("incomplete tile-part count not flagged")
	}
}
