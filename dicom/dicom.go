// Package dicom bridges DICOM files to the structural decoder: it pulls
// the encapsulated JPEG 2000 pixel stream out of a dataset, decodes it
// structurally, and cross-checks the codestream geometry against the
// dataset's image attributes.
package dicom

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/dicom/dataset"
	"github.com/cocosip/go-dicom/pkg/dicom/element"
	"github.com/cocosip/go-dicom/pkg/dicom/parser"
	"github.com/cocosip/go-dicom/pkg/dicom/tag"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"

	"github.com/cocosip/go-jp2-syntax/codestream"
	"github.com/cocosip/go-jp2-syntax/jp2"
	"github.com/cocosip/go-jp2-syntax/syntax"
)

// Inspection is the structural view of a DICOM file's encapsulated
// JPEG 2000 pixel stream.
type Inspection struct {
	// TransferSyntaxUID is the dataset's transfer syntax.
	TransferSyntaxUID string

	// Lossless reports the reversible JPEG 2000 transfer syntax.
	Lossless bool

	// File is set when the pixel stream is a full JP2 container.
	File *jp2.File

	// Codestream is set when the pixel stream is a bare codestream,
	// which is what DICOM encapsulation normally carries.
	Codestream *codestream.Result

	// Findings holds the decode findings plus the dataset cross-checks.
	Findings []syntax.Finding
}

// InspectFile parses the DICOM file at path and inspects its pixel
// stream.
func InspectFile(path string) (*Inspection, error) {
	res, err := parser.ParseFile(path,
		parser.WithReadOption(parser.ReadAll),
		parser.WithLargeObjectSize(100*1024*1024),
	)
	if err != nil {
		return nil, fmt.Errorf("dicom: parse %s: %w", path, err)
	}
	return Inspect(res.Dataset, res.TransferSyntax)
}

// Inspect decodes the encapsulated JPEG 2000 pixel stream of ds.
func Inspect(ds *dataset.Dataset, ts *transfer.Syntax) (*Inspection, error) {
	if !ts.IsEncapsulated() {
		return nil, fmt.Errorf("dicom: transfer syntax %s is not encapsulated", ts.UID().UID())
	}
	uid := ts.UID().UID()
	lossless := uid == transfer.JPEG2000Lossless.UID().UID()
	if !lossless && uid != transfer.JPEG2000.UID().UID() {
		return nil, fmt.Errorf("dicom: transfer syntax %s is not JPEG 2000", uid)
	}

	data, err := pixelStream(ds)
	if err != nil {
		return nil, err
	}

	insp := &Inspection{TransferSyntaxUID: uid, Lossless: lossless}
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0x4F:
		res, err := codestream.Decode(data, 0)
		if err != nil {
			return nil, err
		}
		insp.Codestream = res
		insp.Findings = res.Findings
		insp.crossCheck(ds, mainSegment(res.Nodes, "SIZ"))

	case len(data) >= 12 && data[4] == 'j' && data[5] == 'P':
		f, err := jp2.Decode(data)
		if err != nil {
			return nil, err
		}
		insp.File = f
		insp.Findings = f.Findings
		if cs := f.Codestream(); cs != nil {
			insp.crossCheck(ds, mainSegment(cs.Children, "SIZ"))
		}

	default:
		return nil, fmt.Errorf("dicom: pixel stream is neither a codestream nor a JP2 file")
	}
	return insp, nil
}

// pixelStream concatenates the encapsulated pixel data fragments.
func pixelStream(ds *dataset.Dataset) ([]byte, error) {
	pd, ok := ds.Get(tag.PixelData)
	if !ok {
		return nil, fmt.Errorf("dicom: no pixel data element")
	}
	var data []byte
	switch v := pd.(type) {
	case *element.OtherByteFragment:
		for _, frag := range v.Fragments() {
			data = append(data, frag.Data()...)
		}
	case *element.OtherWordFragment:
		for _, frag := range v.Fragments() {
			data = append(data, frag.Data()...)
		}
	default:
		return nil, fmt.Errorf("dicom: unexpected pixel data type %T", pd)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("dicom: pixel data has no fragments")
	}
	return data, nil
}

func mainSegment(nodes []syntax.Node, name string) *syntax.Segment {
	for _, n := range nodes {
		if s, ok := n.(*syntax.Segment); ok && s.Name == name {
			return s
		}
	}
	return nil
}

// crossCheck compares the codestream geometry against the dataset's
// image attributes. Disagreements are findings, not errors: the stream
// decoded fine, the envelope just describes it wrong.
func (i *Inspection) crossCheck(ds *dataset.Dataset, siz *syntax.Segment) {
	if siz == nil {
		return
	}
	add := func(off int64, format string, args ...interface{}) {
		i.Findings = append(i.Findings, syntax.Finding{
			Code:   syntax.FindingSemanticInconsistency,
			Path:   []string{"SIZ"},
			Offset: off,
			Detail: fmt.Sprintf(format, args...),
		})
	}
	diff := func(full, origin string) (uint64, int64, bool) {
		f := siz.Field(full)
		o := siz.Field(origin)
		if f == nil || o == nil || o.Uint > f.Uint {
			return 0, 0, false
		}
		return f.Uint - o.Uint, f.Offset, true
	}

	if rows := ds.TryGetUInt16(tag.Rows, 0); rows != 0 {
		if h, off, ok := diff("Ysiz", "YOsiz"); ok && h != uint64(rows) {
			add(off, "height %d disagrees with Rows %d", h, rows)
		}
	}
	if cols := ds.TryGetUInt16(tag.Columns, 0); cols != 0 {
		if w, off, ok := diff("Xsiz", "XOsiz"); ok && w != uint64(cols) {
			add(off, "width %d disagrees with Columns %d", w, cols)
		}
	}
	if spp := ds.TryGetUInt16(tag.SamplesPerPixel, 0); spp != 0 {
		if f := siz.Field("Csiz"); f != nil && f.Uint != uint64(spp) {
			add(f.Offset, "component count %d disagrees with SamplesPerPixel %d", f.Uint, spp)
		}
	}
}
