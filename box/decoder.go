// Package box decodes the box structure of the JP2 container format
// (ISO/IEC 15444-1 Annex I): the length/type header walk, nesting of
// super boxes, and dispatch of leaf content to the grammar-driven field
// decoder. The contiguous-codestream box hands its content to the
// codestream package.
package box

import (
	"github.com/sirupsen/logrus"

	"github.com/cocosip/go-jp2-syntax/codestream"
	"github.com/cocosip/go-jp2-syntax/grammar"
	"github.com/cocosip/go-jp2-syntax/syntax"
	"github.com/cocosip/go-jp2-syntax/wire"
)

// Decoder decodes a box sequence, accumulating the non-fatal findings
// and the codestream pointer tables encountered along the way. One
// Decoder serves one decode pass.
type Decoder struct {
	// Log receives Debug-level box tracing and Warn-level tolerance
	// notes. Nil means the logrus standard logger.
	Log *logrus.Logger

	// Findings collects the non-fatal observations of the pass.
	Findings []syntax.Finding

	// Tables holds the pointer tables of the decoded codestream, set
	// once the contiguous-codestream box has been decoded.
	Tables *codestream.Tables

	global *grammar.Scope
}

// NewDecoder returns a Decoder logging to log (nil for the standard
// logger).
func NewDecoder(log *logrus.Logger) *Decoder {
	return &Decoder{Log: log, global: grammar.NewScope(nil)}
}

func (d *Decoder) logger() *logrus.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logrus.StandardLogger()
}

// DecodeAll decodes top-level boxes until the cursor is exhausted.
func (d *Decoder) DecodeAll(cur *wire.Cursor) ([]syntax.Node, error) {
	return d.decodeAll(cur, false)
}

func (d *Decoder) decodeAll(cur *wire.Cursor, nested bool) ([]syntax.Node, error) {
	var nodes []syntax.Node
	for cur.Remaining() > 0 {
		b, err := d.next(cur, nested)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, b)
	}
	return nodes, nil
}

// Next decodes the single top-level box at the cursor position.
func (d *Decoder) Next(cur *wire.Cursor) (*syntax.Container, error) {
	return d.next(cur, false)
}

func (d *Decoder) next(cur *wire.Cursor, nested bool) (*syntax.Container, error) {
	off := cur.Offset()
	lbox, err := cur.Uint(4)
	if err != nil {
		return nil, err
	}
	typ, err := cur.FourCC()
	if err != nil {
		return nil, err
	}

	var (
		ext     bool
		extent  syntax.Extent
		content *wire.Cursor
	)
	switch {
	case lbox == 0:
		// Content runs to the end of the enclosing stream. Legal only
		// for the last top-level box; inside a super box the sentinel
		// is flagged and the content still runs to the parent's end.
		if nested {
			d.Findings = append(d.Findings, syntax.Finding{
				Code:   syntax.FindingSemanticInconsistency,
				Path:   []string{typ},
				Offset: off,
				Detail: "to-end length sentinel inside a super box",
			})
		}
		extent = syntax.Extent{ToEnd: true, Size: int64(cur.Remaining())}
		content, err = cur.Sub(cur.Remaining())

	case lbox == 1:
		ext = true
		xlbox, uerr := cur.Uint(8)
		if uerr != nil {
			return nil, syntax.InPath(uerr, typ)
		}
		if xlbox < 16 {
			return nil, syntax.Errorf(syntax.ErrLengthMismatch, off,
				"box %q declares extended length %d, below its own header", typ, xlbox)
		}
		extent = syntax.Extent{Size: int64(xlbox) - 16}
		content, err = cur.Sub(int(extent.Size))

	case lbox < 8:
		return nil, syntax.Errorf(syntax.ErrLengthMismatch, off,
			"box %q declares length %d, below its own header", typ, lbox)

	default:
		extent = syntax.Extent{Size: int64(lbox) - 8}
		content, err = cur.Sub(int(extent.Size))
	}
	if err != nil {
		return nil, syntax.InPath(err, typ)
	}

	b := &syntax.Container{
		Info: syntax.Info{Offset: content.Offset(), Extent: extent},
		Type: typ,
		Ext:  ext,
	}
	d.logger().Debugf("box %q length=%d offset=%d", typ, extent.Size, off)

	def, known := grammar.Box(typ)
	if !known {
		raw, _ := content.Take(content.Remaining())
		b.Raw = raw
		b.Unknown = true
		d.Findings = append(d.Findings, syntax.Finding{
			Code:   syntax.FindingUnknownElement,
			Path:   []string{typ},
			Offset: off,
			Detail: "box type outside the known catalog, captured opaquely",
		})
		d.logger().Warnf("unknown box %q at offset %d, captured opaquely", typ, off)
		return b, nil
	}

	switch def.Role {
	case grammar.RoleSuper:
		children, err := d.decodeAll(content, true)
		if err != nil {
			return nil, syntax.InPath(err, typ)
		}
		b.Children = children

	case grammar.RoleCodestream:
		raw, _ := content.Take(content.Remaining())
		cd := codestream.Decoder{Log: d.Log}
		res, err := cd.Decode(raw, b.Offset)
		if err != nil {
			return nil, syntax.InPath(err, typ)
		}
		for i := range res.Findings {
			res.Findings[i].Path = append([]string{typ}, res.Findings[i].Path...)
		}
		d.Findings = append(d.Findings, res.Findings...)
		d.Tables = &res.Tables
		b.Children = res.Nodes

	default:
		sc := grammar.NewScope(d.global)
		members, fs, err := grammar.DecodeMembers(content, def.Members, sc)
		if err != nil {
			return nil, syntax.InPath(err, typ)
		}
		if rem := content.Remaining(); rem > 0 {
			return nil, syntax.Errorf(syntax.ErrLengthMismatch, content.Offset(),
				"box %q declared %d content bytes, %d unconsumed", typ, extent.Size, rem)
		}
		for i := range fs {
			fs[i].Path = append([]string{typ}, fs[i].Path...)
		}
		d.Findings = append(d.Findings, fs...)
		b.Children = members
	}
	return b, nil
}
