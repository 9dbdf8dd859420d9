// Package jp2 is the top-level entry point: it decodes a complete JP2
// file into its box tree, runs the consistency checks, and exposes the
// aggregate result.
package jp2

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/cocosip/go-jp2-syntax/box"
	"github.com/cocosip/go-jp2-syntax/codestream"
	"github.com/cocosip/go-jp2-syntax/syntax"
	"github.com/cocosip/go-jp2-syntax/validation"
	"github.com/cocosip/go-jp2-syntax/wire"
)

// File is a decoded JP2 file.
type File struct {
	// Boxes is the top-level box sequence in file order.
	Boxes []syntax.Node

	// Findings holds every non-fatal observation of the pass: decode
	// tolerances first, consistency checks after.
	Findings []syntax.Finding

	// Tables holds the codestream's assembled pointer tables.
	Tables codestream.Tables
}

// Box returns the first top-level box with the given type code, or nil.
func (f *File) Box(typ string) *syntax.Container {
	for _, n := range f.Boxes {
		if c, ok := n.(*syntax.Container); ok && c.Type == typ {
			return c
		}
	}
	return nil
}

// Codestream returns the contiguous-codestream box, or nil.
func (f *File) Codestream() *syntax.Container { return f.Box("jp2c") }

// Header returns the header super box, or nil.
func (f *File) Header() *syntax.Container { return f.Box("jp2h") }

// Decoder decodes JP2 files. The zero value is ready to use.
type Decoder struct {
	// Log receives Debug-level tracing and Warn-level tolerance notes.
	// Nil means the logrus standard logger.
	Log *logrus.Logger
}

// Decode decodes a complete JP2 file using a zero Decoder.
func Decode(data []byte) (*File, error) {
	return (&Decoder{}).Decode(data)
}

// The mandatory top-level skeleton: the signature box first, the file
// type box second, the header super box somewhere before the single
// contiguous-codestream box. Other boxes may appear after the file type
// box in any order.
func (d *Decoder) Decode(data []byte) (*File, error) {
	cur := wire.NewCursor(data, 0)
	bd := box.NewDecoder(d.Log)

	var (
		boxes      []syntax.Node
		seenHeader bool
		seenStream bool
	)
	for cur.Remaining() > 0 {
		off := cur.Offset()

		// Bytes after the codestream box that cannot be a box are kept
		// as opaque trailing data, not discarded and not an error: some
		// profiles append metadata there.
		if seenStream && !boxHeaderAhead(data[int(off):]) {
			raw, _ := cur.Take(cur.Remaining())
			boxes = append(boxes, &syntax.Field{
				Info:  syntax.Info{Offset: off, Extent: syntax.Extent{Size: int64(len(raw))}},
				Name:  "trailing",
				Kind:  syntax.KindHex,
				Width: len(raw),
				Raw:   raw,
			})
			bd.Findings = append(bd.Findings, syntax.Finding{
				Code:   syntax.FindingSemanticInconsistency,
				Offset: off,
				Detail: "bytes after the last box",
			})
			break
		}

		b, err := bd.Next(cur)
		if err != nil {
			return nil, err
		}

		switch len(boxes) {
		case 0:
			if b.Type != "jP  " {
				return nil, syntax.Errorf(syntax.ErrStructuralOrder, off,
					"expected the signature box first, found %q", b.Type)
			}
		case 1:
			if b.Type != "ftyp" {
				return nil, syntax.Errorf(syntax.ErrStructuralOrder, off,
					"expected the file type box second, found %q", b.Type)
			}
		default:
			switch b.Type {
			case "jp2h":
				if seenStream {
					return nil, syntax.Errorf(syntax.ErrStructuralOrder, off,
						"header box after the codestream box")
				}
				seenHeader = true
			case "jp2c":
				if !seenHeader {
					return nil, syntax.Errorf(syntax.ErrStructuralOrder, off,
						"codestream box before the header box")
				}
				if seenStream {
					return nil, syntax.Errorf(syntax.ErrStructuralOrder, off,
						"more than one codestream box")
				}
				seenStream = true
			}
		}
		boxes = append(boxes, b)
	}
	if !seenStream {
		return nil, syntax.Errorf(syntax.ErrStructuralOrder, cur.Offset(),
			"file ends without a codestream box")
	}

	f := &File{Boxes: boxes, Findings: bd.Findings}
	if bd.Tables != nil {
		f.Tables = *bd.Tables
	}
	f.Findings = append(f.Findings, validation.Validate(boxes)...)
	return f, nil
}

// boxHeaderAhead reports whether b starts with a plausible box header:
// a printable type code and a declared length that fits the bytes left.
func boxHeaderAhead(b []byte) bool {
	if len(b) < 8 {
		return false
	}
	for _, c := range b[4:8] {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	lbox := uint64(binary.BigEndian.Uint32(b))
	switch {
	case lbox == 0:
		return true
	case lbox == 1:
		if len(b) < 16 {
			return false
		}
		xlbox := binary.BigEndian.Uint64(b[8:16])
		return xlbox >= 16 && xlbox <= uint64(len(b))
	case lbox < 8:
		return false
	default:
		return lbox <= uint64(len(b))
	}
}
