package jp2

import (
	"fmt"

	"github.com/cocosip/go-jp2-syntax/syntax"
)

// CodingParameters is the flattened view of the size, coding style and
// quantization defaults a downstream pixel pipeline needs, pulled from
// the codestream's main header.
type CodingParameters struct {
	Width      uint32
	Height     uint32
	Components int

	ProgressionOrder    uint8
	Layers              uint16
	MultipleComponent   bool
	DecompositionLevels int
	CodeBlockWidth      int
	CodeBlockHeight     int
	Reversible          bool

	QuantizationStyle uint8
	GuardBits         uint8
	StepSizes         []uint16
}

// Parameters extracts the coding parameters from the main header. It
// fails when the codestream or one of the mandatory segments is absent.
func (f *File) Parameters() (*CodingParameters, error) {
	cs := f.Codestream()
	if cs == nil {
		return nil, fmt.Errorf("jp2: no codestream box")
	}
	var siz, cod, qcd *syntax.Segment
	for _, n := range cs.Children {
		s, ok := n.(*syntax.Segment)
		if !ok {
			continue
		}
		switch s.Name {
		case "SIZ":
			if siz == nil {
				siz = s
			}
		case "COD":
			if cod == nil {
				cod = s
			}
		case "QCD":
			if qcd == nil {
				qcd = s
			}
		}
	}
	if siz == nil || cod == nil || qcd == nil {
		return nil, fmt.Errorf("jp2: main header lacks SIZ, COD or QCD")
	}

	p := &CodingParameters{}
	p.Width = uint32(fieldUint(siz.Field("Xsiz")) - fieldUint(siz.Field("XOsiz")))
	p.Height = uint32(fieldUint(siz.Field("Ysiz")) - fieldUint(siz.Field("YOsiz")))
	p.Components = int(fieldUint(siz.Field("Csiz")))

	p.ProgressionOrder = uint8(fieldUint(cod.Field("order")))
	p.Layers = uint16(fieldUint(cod.Field("layers")))
	p.MultipleComponent = fieldUint(cod.Field("mct")) != 0
	p.DecompositionLevels = int(fieldUint(cod.Field("levels")))
	// The exponent fields carry the code-block dimensions as log2 minus
	// two.
	p.CodeBlockWidth = 1 << (fieldUint(cod.Field("cb_width"))&0x0F + 2)
	p.CodeBlockHeight = 1 << (fieldUint(cod.Field("cb_height"))&0x0F + 2)
	p.Reversible = fieldUint(cod.Field("transform")) == 1

	sqcd := uint8(fieldUint(qcd.Field("Sqcd")))
	p.QuantizationStyle = sqcd & 0x1F
	p.GuardBits = sqcd >> 5
	for _, n := range qcd.Members {
		if f, ok := n.(*syntax.Field); ok && f.Name == "SPqcd" {
			p.StepSizes = append(p.StepSizes, uint16(f.Uint))
		}
	}
	return p, nil
}

func fieldUint(f *syntax.Field) uint64 {
	if f == nil {
		return 0
	}
	return f.Uint
}
