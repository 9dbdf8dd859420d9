// Package validation cross-checks a decoded tree for semantic
// consistency between the container header and the codestream. Every
// check yields a finding, never an error: an inconsistent file already
// decoded structurally, and the findings describe what disagrees.
package validation

import (
	"fmt"

	"github.com/cocosip/go-jp2-syntax/syntax"
)

// Validate runs the cross-element consistency checks over the decoded
// top-level box sequence and returns the findings in check order.
func Validate(boxes []syntax.Node) []syntax.Finding {
	v := &validator{}
	v.fileType(boxes)
	v.header(boxes)
	v.codestream(boxes)
	return v.findings
}

type validator struct {
	findings []syntax.Finding
}

func (v *validator) add(path []string, off int64, format string, args ...interface{}) {
	v.findings = append(v.findings, syntax.Finding{
		Code:   syntax.FindingSemanticInconsistency,
		Path:   path,
		Offset: off,
		Detail: fmt.Sprintf(format, args...),
	})
}

func box(boxes []syntax.Node, typ string) *syntax.Container {
	for _, n := range boxes {
		if c, ok := n.(*syntax.Container); ok && c.Type == typ {
			return c
		}
	}
	return nil
}

func segments(cs *syntax.Container, name string) []*syntax.Segment {
	var out []*syntax.Segment
	for _, n := range cs.Children {
		switch t := n.(type) {
		case *syntax.Segment:
			if t.Name == name {
				out = append(out, t)
			}
		case *syntax.Group:
			for _, m := range t.Members {
				if s, ok := m.(*syntax.Segment); ok && s.Name == name {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// fileType checks that the file-type box declares JP2 compatibility:
// the brand or one of the compatibility entries must read "jp2 ".
func (v *validator) fileType(boxes []syntax.Node) {
	ftyp := box(boxes, "ftyp")
	if ftyp == nil {
		return
	}
	if f := ftyp.Field("brand"); f != nil && f.Str == "jp2 " {
		return
	}
	for _, n := range ftyp.Children {
		if f, ok := n.(*syntax.Field); ok && f.Name == "compatibility" && f.Str == "jp2 " {
			return
		}
	}
	v.add([]string{"ftyp"}, ftyp.Offset,
		"neither brand nor compatibility list declares \"jp2 \"")
}

// header checks the internal shape of the header super box: the image
// header must come first, a colour specification must be present, and
// the per-component depth box must appear exactly when the image header
// defers to it.
func (v *validator) header(boxes []syntax.Node) {
	jp2h := box(boxes, "jp2h")
	if jp2h == nil {
		return
	}
	if len(jp2h.Children) > 0 {
		if first, ok := jp2h.Children[0].(*syntax.Container); !ok || first.Type != "ihdr" {
			v.add([]string{"jp2h"}, jp2h.Offset,
				"image header box is not the first box in the header")
		}
	}
	if jp2h.Child("colr") == nil {
		v.add([]string{"jp2h"}, jp2h.Offset, "no colour specification box")
	}

	ihdr := jp2h.Child("ihdr")
	if ihdr == nil {
		v.add([]string{"jp2h"}, jp2h.Offset, "no image header box")
		return
	}
	bpc := ihdr.Field("bits_per_component")
	hasBpcc := jp2h.Child("bpcc") != nil
	if bpc != nil {
		if bpc.Uint == 0xFF && !hasBpcc {
			v.add([]string{"jp2h", "ihdr"}, ihdr.Offset,
				"component depths deferred to a bpcc box that is absent")
		}
		if bpc.Uint != 0xFF && hasBpcc {
			v.add([]string{"jp2h", "bpcc"}, jp2h.Child("bpcc").Offset,
				"bpcc box present but the image header declares a uniform depth")
		}
	}
}

// codestream checks agreement between the image header and the size
// segment, component index ranges, and tile-part sequencing.
func (v *validator) codestream(boxes []syntax.Node) {
	cs := box(boxes, "jp2c")
	if cs == nil {
		return
	}
	sizs := segments(cs, "SIZ")
	if len(sizs) == 0 {
		return
	}
	siz := sizs[0]

	var csiz uint64
	if f := siz.Field("Csiz"); f != nil {
		csiz = f.Uint
	}

	// Image header vs size segment.
	if jp2h := box(boxes, "jp2h"); jp2h != nil {
		if ihdr := jp2h.Child("ihdr"); ihdr != nil {
			v.imageHeader(ihdr, siz)
		}
	}

	// Component index ranges.
	for _, name := range []string{"COC", "QCC", "RGN"} {
		field := map[string]string{"COC": "Ccoc", "QCC": "Cqcc", "RGN": "Crgn"}[name]
		for _, seg := range segments(cs, name) {
			if f := seg.Field(field); f != nil && f.Uint >= csiz {
				v.add([]string{"jp2c", name}, f.Offset,
					"component index %d out of range, %d components declared", f.Uint, csiz)
			}
		}
	}
	for _, seg := range segments(cs, "POC") {
		for _, g := range seg.Groups("progression") {
			if f := g.Field("CSpoc"); f != nil && f.Uint >= csiz {
				v.add([]string{"jp2c", "POC"}, f.Offset,
					"progression start component %d out of range, %d components declared", f.Uint, csiz)
			}
			if f := g.Field("CEpoc"); f != nil && f.Uint > csiz {
				v.add([]string{"jp2c", "POC"}, f.Offset,
					"progression end component %d out of range, %d components declared", f.Uint, csiz)
			}
		}
	}

	v.tileParts(cs, siz)
}

func (v *validator) imageHeader(ihdr *syntax.Container, siz *syntax.Segment) {
	nc := ihdr.Field("num_components")
	if sf := siz.Field("Csiz"); nc != nil && sf != nil && nc.Uint != sf.Uint {
		v.add([]string{"jp2h", "ihdr"}, nc.Offset,
			"component count %d disagrees with the size segment's %d", nc.Uint, sf.Uint)
	}

	// The image header's height and width are reference-grid extents.
	h := ihdr.Field("height")
	w := ihdr.Field("width")
	if h != nil && w != nil {
		gh := gridExtent(siz, "Ysiz", "YOsiz")
		gw := gridExtent(siz, "Xsiz", "XOsiz")
		if gh >= 0 && h.Uint != uint64(gh) {
			v.add([]string{"jp2h", "ihdr"}, h.Offset,
				"height %d disagrees with the size segment's grid extent %d", h.Uint, gh)
		}
		if gw >= 0 && w.Uint != uint64(gw) {
			v.add([]string{"jp2h", "ihdr"}, w.Offset,
				"width %d disagrees with the size segment's grid extent %d", w.Uint, gw)
		}
	}
}

func gridExtent(siz *syntax.Segment, full, origin string) int64 {
	f := siz.Field(full)
	o := siz.Field(origin)
	if f == nil || o == nil || o.Uint > f.Uint {
		return -1
	}
	return int64(f.Uint - o.Uint)
}

// tileParts checks Isot against the tile grid and the TPsot/TNsot
// sequencing within each tile.
func (v *validator) tileParts(cs *syntax.Container, siz *syntax.Segment) {
	tiles := tileCount(siz)

	type tileSeq struct {
		next  uint64
		total uint64
	}
	seqs := make(map[uint64]*tileSeq)

	for _, sot := range segments(cs, "SOT") {
		isot := sot.Field("Isot")
		if isot == nil {
			continue
		}
		if tiles > 0 && isot.Uint >= tiles {
			v.add([]string{"jp2c", "SOT"}, isot.Offset,
				"tile index %d out of range, grid has %d tiles", isot.Uint, tiles)
		}
		seq := seqs[isot.Uint]
		if seq == nil {
			seq = &tileSeq{}
			seqs[isot.Uint] = seq
		}
		if tp := sot.Field("TPsot"); tp != nil {
			if tp.Uint != seq.next {
				v.add([]string{"jp2c", "SOT"}, tp.Offset,
					"tile %d: tile-part index %d, expected %d", isot.Uint, tp.Uint, seq.next)
			}
			seq.next = tp.Uint + 1
		}
		if tn := sot.Field("TNsot"); tn != nil && tn.Uint != 0 {
			if seq.total != 0 && seq.total != tn.Uint {
				v.add([]string{"jp2c", "SOT"}, tn.Offset,
					"tile %d: tile-part count restated as %d, was %d", isot.Uint, tn.Uint, seq.total)
			}
			seq.total = tn.Uint
		}
	}
	for idx, seq := range seqs {
		if seq.total != 0 && seq.next != seq.total {
			v.add([]string{"jp2c", "SOT"}, cs.Offset,
				"tile %d: %d tile-parts present, %d declared", idx, seq.next, seq.total)
		}
	}
}

// tileCount derives the tile grid size from the size segment, zero when
// the geometry fields are degenerate.
func tileCount(siz *syntax.Segment) uint64 {
	get := func(name string) (uint64, bool) {
		f := siz.Field(name)
		if f == nil {
			return 0, false
		}
		return f.Uint, true
	}
	xsiz, ok1 := get("Xsiz")
	ysiz, ok2 := get("Ysiz")
	xto, ok3 := get("XTOsiz")
	yto, ok4 := get("YTOsiz")
	xt, ok5 := get("XTsiz")
	yt, ok6 := get("YTsiz")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return 0
	}
	if xt == 0 || yt == 0 || xsiz <= xto || ysiz <= yto {
		return 0
	}
	nx := (xsiz - xto + xt - 1) / xt
	ny := (ysiz - yto + yt - 1) / yt
	return nx * ny
}
