package codestream

import (
	"github.com/sirupsen/logrus"

	"github.com/cocosip/go-jp2-syntax/grammar"
	"github.com/cocosip/go-jp2-syntax/syntax"
	"github.com/cocosip/go-jp2-syntax/wire"
)

// Tables holds the pointer-marker tables assembled across marker
// occurrences: packet lengths from PLM/PLT and packed packet headers
// from PPM/PPT. Tile-keyed maps use the Isot tile index.
type Tables struct {
	// MainPacketLengths is the concatenated PLM packet-length list, one
	// entry per packet, ordered as the tile-parts appear.
	MainPacketLengths []uint64

	// PackedHeaders holds one PPM record per tile-part.
	PackedHeaders [][]byte

	// TilePacketLengths holds the concatenated PLT packet lengths per
	// tile.
	TilePacketLengths map[uint16][]uint64

	// TilePackedHeaders holds one PPT record per tile-part, per tile.
	TilePackedHeaders map[uint16][][]byte
}

// Result is a decoded codestream: the marker-segment node sequence
// (ready to become the children of the contiguous-codestream box), the
// non-fatal findings observed while decoding, and the assembled pointer
// tables.
type Result struct {
	Nodes    []syntax.Node
	Findings []syntax.Finding
	Tables   Tables
}

// Decoder decodes codestreams. The zero value is ready to use; a Decoder
// holds no per-decode state and may be shared.
type Decoder struct {
	// Log receives Debug-level marker tracing and Warn-level tolerance
	// notes. Nil means the logrus standard logger.
	Log *logrus.Logger
}

// Decode decodes the codestream in data using a zero Decoder.
func Decode(data []byte, base int64) (*Result, error) {
	return (&Decoder{}).Decode(data, base)
}

// Decode decodes one complete codestream. base is the absolute offset of
// data[0] in the enclosing stream (the content offset of the jp2c box,
// or zero for a bare codestream).
func (d *Decoder) Decode(data []byte, base int64) (*Result, error) {
	r := &run{
		log:    d.logger(),
		cur:    wire.NewCursor(data, base),
		global: grammar.NewScope(nil),
		tables: Tables{
			TilePacketLengths: make(map[uint16][]uint64),
			TilePackedHeaders: make(map[uint16][][]byte),
		},
		zNext: make(map[uint16]uint64),
	}
	nodes, err := r.decode()
	if err != nil {
		return nil, err
	}
	return &Result{Nodes: nodes, Findings: r.findings, Tables: r.tables}, nil
}

func (d *Decoder) logger() *logrus.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logrus.StandardLogger()
}

// run is the state of one decode pass.
type run struct {
	log      *logrus.Logger
	cur      *wire.Cursor
	global   *grammar.Scope
	findings []syntax.Finding
	tables   Tables

	plm       plmTable
	plmSeen   bool
	ppm       ppmTable
	ppmSeen   bool
	mainFinal bool

	// zNext tracks the expected next Z index per pointer-marker code in
	// the main header; out-of-order indices are findings.
	zNext map[uint16]uint64
}

func (r *run) decode() ([]syntax.Node, error) {
	code, ok := r.cur.PeekUint16()
	if !ok {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, r.cur.Offset(),
			"no room for SOC marker")
	}
	if code != MarkerSOC {
		return nil, syntax.Errorf(syntax.ErrStructuralOrder, r.cur.Offset(),
			"expected SOC, found %s", grammar.MarkerName(code))
	}
	nodes := []syntax.Node{r.delimiter()}

	// The size segment must immediately follow the SOC delimiter.
	code, ok = r.cur.PeekUint16()
	if !ok {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, r.cur.Offset(),
			"codestream ends after SOC")
	}
	if code != MarkerSIZ {
		return nil, syntax.Errorf(syntax.ErrStructuralOrder, r.cur.Offset(),
			"expected SIZ immediately after SOC, found %s", grammar.MarkerName(code))
	}

	for {
		code, ok := r.cur.PeekUint16()
		if !ok {
			return nil, syntax.Errorf(syntax.ErrTruncatedInput, r.cur.Offset(),
				"codestream ends without EOC")
		}
		if code&0xFF00 != 0xFF00 {
			return nil, syntax.Errorf(syntax.ErrStructuralOrder, r.cur.Offset(),
				"expected a marker, found 0x%04X", code)
		}

		switch code {
		case MarkerSOT:
			if err := r.finalizeMain(); err != nil {
				return nil, err
			}
			g, err := r.tilePart()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, g)

		case MarkerEOC:
			if err := r.finalizeMain(); err != nil {
				return nil, err
			}
			nodes = append(nodes, r.delimiter())
			if rem := r.cur.Remaining(); rem > 0 {
				off := r.cur.Offset()
				raw, _ := r.cur.Take(rem)
				nodes = append(nodes, &syntax.Field{
					Info:  syntax.Info{Offset: off, Extent: syntax.Extent{Size: int64(rem)}},
					Name:  "trailing",
					Kind:  syntax.KindHex,
					Width: rem,
					Raw:   raw,
				})
				r.findings = append(r.findings, syntax.Finding{
					Code:   syntax.FindingSemanticInconsistency,
					Offset: off,
					Detail: "bytes after EOC",
				})
			}
			return nodes, nil

		default:
			seg, err := r.segment(r.global, nil)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, seg)
		}
	}
}

// delimiter consumes a length-less marker. The caller has peeked it.
func (r *run) delimiter() *syntax.Segment {
	code, _ := r.cur.Uint16()
	r.log.Debugf("marker %s offset=%d", grammar.MarkerName(code), r.cur.Offset()-2)
	return &syntax.Segment{
		Info:      syntax.Info{Offset: r.cur.Offset()},
		Marker:    code,
		Name:      grammar.MarkerName(code),
		Delimiter: true,
	}
}

// segment decodes one marker segment with a length field. tile is the
// enclosing tile-part context, nil in the main header.
func (r *run) segment(parent *grammar.Scope, tile *tileCtx) (*syntax.Segment, error) {
	markerOff := r.cur.Offset()
	code, err := r.cur.Uint16()
	if err != nil {
		return nil, err
	}
	def, known := grammar.Marker(code)
	name := grammar.MarkerName(code)
	if known && def.Delimiter {
		return &syntax.Segment{
			Info:      syntax.Info{Offset: r.cur.Offset()},
			Marker:    code,
			Name:      name,
			Delimiter: true,
		}, nil
	}

	length, err := r.cur.Uint16()
	if err != nil {
		return nil, syntax.InPath(err, name)
	}
	if length < 2 {
		return nil, syntax.Errorf(syntax.ErrLengthMismatch, markerOff,
			"segment %s declares impossible length %d", name, length)
	}
	body, err := r.cur.Sub(int(length) - 2)
	if err != nil {
		return nil, syntax.InPath(err, name)
	}
	r.log.Debugf("marker %s length=%d offset=%d", name, length, markerOff)

	seg := &syntax.Segment{
		Info:   syntax.Info{Offset: markerOff + 2, Extent: syntax.Extent{Size: int64(length)}},
		Marker: code,
		Name:   name,
	}

	if !known {
		off := body.Offset()
		raw, _ := body.Take(body.Remaining())
		seg.Unknown = true
		seg.Members = []syntax.Node{&syntax.Field{
			Info:  syntax.Info{Offset: off, Extent: syntax.Extent{Size: int64(len(raw))}},
			Name:  "data",
			Kind:  syntax.KindHex,
			Width: len(raw),
			Raw:   raw,
		}}
		r.findings = append(r.findings, syntax.Finding{
			Code:   syntax.FindingUnknownElement,
			Path:   []string{name},
			Offset: markerOff,
			Detail: "marker outside the known catalog, captured opaquely",
		})
		r.log.Warnf("unknown marker 0x%04X at offset %d, captured opaquely", code, markerOff)
		return seg, nil
	}

	ssc := grammar.NewScope(parent)
	members, fs, err := grammar.DecodeMembers(body, def.Members, ssc)
	if err != nil {
		return nil, syntax.InPath(err, name)
	}
	if rem := body.Remaining(); rem > 0 {
		return nil, syntax.Errorf(syntax.ErrLengthMismatch, body.Offset(),
			"segment %s declared %d bytes, %d unconsumed", name, length, rem)
	}
	for i := range fs {
		fs[i].Path = append([]string{name}, fs[i].Path...)
	}
	r.findings = append(r.findings, fs...)
	seg.Members = members

	if def.Assemble != "" {
		r.feedTable(def.Assemble, seg, tile)
	}
	return seg, nil
}

// tileCtx is the per-tile-part assembly state for the PLT and PPT
// families, finalized when the tile-part header closes at SOD.
type tileCtx struct {
	index   uint16
	plt     varintTable
	pltSeen bool
	ppt     []byte
	pptSeen bool
	zNext   map[uint16]uint64
}

func (r *run) feedTable(family string, seg *syntax.Segment, tile *tileCtx) {
	var zName string
	switch family {
	case "plm":
		zName = "Zplm"
	case "plt":
		zName = "Zplt"
	case "ppm":
		zName = "Zppm"
	case "ppt":
		zName = "Zppt"
	}
	var table []byte
	if f := seg.Field("table"); f != nil {
		table = f.Raw
	}

	zCounters := r.zNext
	if tile != nil {
		zCounters = tile.zNext
	}
	if zf := seg.Field(zName); zf != nil {
		if want := zCounters[seg.Marker]; zf.Uint != want {
			r.findings = append(r.findings, syntax.Finding{
				Code:   syntax.FindingSemanticInconsistency,
				Path:   []string{seg.Name},
				Offset: zf.Offset,
				Detail: "index " + zName + " out of sequence",
			})
		}
		zCounters[seg.Marker] = zf.Uint + 1
	}

	switch family {
	case "plm":
		r.plm.feed(table)
		r.plmSeen = true
	case "ppm":
		r.ppm.feed(table)
		r.ppmSeen = true
	case "plt":
		if tile != nil {
			tile.plt.feed(table)
			tile.pltSeen = true
		}
	case "ppt":
		if tile != nil {
			tile.ppt = append(tile.ppt, table...)
			tile.pptSeen = true
		}
	}
}

// finalizeMain closes the main-header pointer tables when the first
// tile-part (or EOC) is reached.
func (r *run) finalizeMain() error {
	if r.mainFinal {
		return nil
	}
	r.mainFinal = true
	if r.plmSeen {
		lengths, err := r.plm.finalize(r.cur.Offset())
		if err != nil {
			return err
		}
		r.tables.MainPacketLengths = lengths
	}
	if r.ppmSeen {
		records, err := r.ppm.finalize(r.cur.Offset())
		if err != nil {
			return err
		}
		r.tables.PackedHeaders = records
	}
	return nil
}

// tilePart decodes one SOT..SOD bracketed tile-part plus its compressed
// payload, captured opaquely.
func (r *run) tilePart() (*syntax.Group, error) {
	markerOff := r.cur.Offset()
	sot, err := r.segment(r.global, nil)
	if err != nil {
		return nil, err
	}
	isot := sot.Field("Isot")
	psot := sot.Field("Psot")
	if isot == nil || psot == nil {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, markerOff,
			"SOT segment lacks tile-part fields")
	}

	tc := &tileCtx{index: uint16(isot.Uint), zNext: make(map[uint16]uint64)}
	tsc := grammar.NewScope(r.global)
	for _, m := range sot.Members {
		if f, ok := m.(*syntax.Field); ok && f.Kind == syntax.KindUint {
			tsc.Set(f.Name, f.Uint)
		}
	}

	members := []syntax.Node{sot}
	for {
		code, ok := r.cur.PeekUint16()
		if !ok {
			return nil, syntax.Errorf(syntax.ErrTruncatedInput, r.cur.Offset(),
				"tile-part %d header ends without SOD", tc.index)
		}
		if code == MarkerSOD {
			members = append(members, r.delimiter())
			break
		}
		if code == MarkerSOT || code == MarkerEOC {
			return nil, syntax.Errorf(syntax.ErrStructuralOrder, r.cur.Offset(),
				"expected SOD to close tile-part %d header, found %s",
				tc.index, grammar.MarkerName(code))
		}
		if code&0xFF00 != 0xFF00 {
			return nil, syntax.Errorf(syntax.ErrStructuralOrder, r.cur.Offset(),
				"expected a marker in tile-part header, found 0x%04X", code)
		}
		seg, err := r.segment(tsc, tc)
		if err != nil {
			return nil, err
		}
		members = append(members, seg)
	}

	if tc.pltSeen {
		lengths, err := tc.plt.finalize(r.cur.Offset(), "PLT")
		if err != nil {
			return nil, err
		}
		r.tables.TilePacketLengths[tc.index] = append(r.tables.TilePacketLengths[tc.index], lengths...)
	}
	if tc.pptSeen {
		r.tables.TilePackedHeaders[tc.index] = append(r.tables.TilePackedHeaders[tc.index], tc.ppt)
	}

	// Psot covers the whole tile-part from the SOT marker; zero is the
	// "rest of codestream" sentinel, legal only for the last tile-part.
	toEnd := psot.Uint == 0
	var payload []byte
	payloadOff := r.cur.Offset()
	if toEnd {
		payload = r.cur.TakeToMarker(MarkerSOT, MarkerEOC)
	} else {
		header := r.cur.Offset() - markerOff
		if int64(psot.Uint) < header {
			return nil, syntax.Errorf(syntax.ErrLengthMismatch, markerOff,
				"tile-part %d: Psot %d shorter than its own header (%d bytes)",
				tc.index, psot.Uint, header)
		}
		payload, err = r.cur.Take(int(int64(psot.Uint) - header))
		if err != nil {
			return nil, syntax.InPath(err, "tile_part")
		}
	}
	if len(payload) > 0 {
		members = append(members, &syntax.Field{
			Info:  syntax.Info{Offset: payloadOff, Extent: syntax.Extent{Size: int64(len(payload))}},
			Name:  "bitstream",
			Kind:  syntax.KindHex,
			Width: len(payload),
			Raw:   payload,
		})
	}

	return &syntax.Group{
		Info: syntax.Info{
			Offset: markerOff,
			Extent: syntax.Extent{ToEnd: toEnd, Size: r.cur.Offset() - markerOff},
		},
		Name:    "tile_part",
		Members: members,
	}, nil
}
