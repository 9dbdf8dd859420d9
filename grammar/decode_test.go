package grammar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cocosip/go-jp2-syntax/syntax"
	"github.com/cocosip/go-jp2-syntax/wire"
)

func TestRegistryLookup(t *testing.T) {
	if _, ok := Box("ihdr"); !ok {
		t.Error("ihdr missing from the box catalog")
	}
	if _, ok := Box("zzzz"); ok {
		t.Error("unexpected definition for an unknown box type")
	}
	def, ok := Marker(0xFF51)
	if !ok {
		t.Fatal("SIZ missing from the marker catalog")
	}
	if def.Name != "SIZ" {
		t.Errorf("0xFF51 named %q", def.Name)
	}
	if !IsDelimiter(0xFF4F) {
		t.Error("SOC not classified as a delimiter")
	}
	if IsDelimiter(0xFF51) {
		t.Error("SIZ classified as a delimiter")
	}
	if MarkerName(0xFF13) != "0xFF13" {
		t.Errorf("unknown marker rendered as %q", MarkerName(0xFF13))
	}
}

func TestDecodeSIZComponentRepeat(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))    // Rsiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(256))  // Xsiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(128))  // Ysiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))    // XOsiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))    // YOsiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(256))  // XTsiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(128))  // YTsiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))    // XTOsiz
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))    // YTOsiz
	_ = binary.Write(&buf, binary.BigEndian, uint16(3))    // Csiz
	for i := 0; i < 3; i++ {
		_ = binary.Write(&buf, binary.BigEndian, uint8(7)) // Ssiz
		_ = binary.Write(&buf, binary.BigEndian, uint8(1)) // XRsiz
		_ = binary.Write(&buf, binary.BigEndian, uint8(1)) // YRsiz
	}

	def, _ := Marker(0xFF51)
	sc := NewScope(nil)
	cur := wire.NewCursor(buf.Bytes(), 0)
	nodes, findings, err := DecodeMembers(cur, def.Members, sc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("unexpected findings: %v", findings)
	}
	if cur.Remaining() != 0 {
		t.Errorf("%d bytes unconsumed", cur.Remaining())
	}

	var groups int
	for _, n := range nodes {
		if g, ok := n.(*syntax.Group); ok && g.Name == "component" {
			groups++
		}
	}
	if groups != 3 {
		t.Errorf("expected 3 component groups, got %d", groups)
	}
	if v, ok := sc.Lookup("Csiz"); !ok || v != 3 {
		t.Errorf("Csiz not exported: %d, %v", v, ok)
	}
}

func TestDecodePrecinctsGatedOnScod(t *testing.T) {
	cod := func(scod uint8, precincts []byte) []byte {
		var buf bytes.Buffer
		buf.WriteByte(scod)
		buf.WriteByte(0)                                    // order
		_ = binary.Write(&buf, binary.BigEndian, uint16(1)) // layers
		buf.WriteByte(0)                                    // mct
		buf.WriteByte(2)                                    // levels
		buf.WriteByte(4)                                    // cb_width
		buf.WriteByte(4)                                    // cb_height
		buf.WriteByte(0)                                    // cb_style
		buf.WriteByte(1)                                    // transform
		buf.Write(precincts)
		return buf.Bytes()
	}

	def, _ := Marker(0xFF52)

	// Flag clear: no precinct bytes expected.
	cur := wire.NewCursor(cod(0x00, nil), 0)
	nodes, _, err := DecodeMembers(cur, def.Members, NewScope(nil))
	if err != nil {
		t.Fatalf("decode without precincts failed: %v", err)
	}
	for _, n := range nodes {
		if n.Tag() == "precinct" {
			t.Error("precinct field present with the flag clear")
		}
	}

	// Flag set: levels+1 precinct bytes.
	cur = wire.NewCursor(cod(0x01, []byte{0x88, 0x88, 0x88}), 0)
	nodes, _, err = DecodeMembers(cur, def.Members, NewScope(nil))
	if err != nil {
		t.Fatalf("decode with precincts failed: %v", err)
	}
	var precincts int
	for _, n := range nodes {
		if n.Tag() == "precinct" {
			precincts++
		}
	}
	if precincts != 3 {
		t.Errorf("expected 3 precinct fields, got %d", precincts)
	}
	if cur.Remaining() != 0 {
		t.Errorf("%d bytes unconsumed", cur.Remaining())
	}
}

func TestDecodeQuantizationWidths(t *testing.T) {
	def, _ := Marker(0xFF5C)

	// Style 0 (no quantization): one byte per step.
	cur := wire.NewCursor([]byte{0x40, 0x10, 0x12, 0x14}, 0)
	nodes, _, err := DecodeMembers(cur, def.Members, NewScope(nil))
	if err != nil {
		t.Fatalf("style 0 decode failed: %v", err)
	}
	if n := countFields(nodes, "SPqcd"); n != 3 {
		t.Errorf("style 0: expected 3 step fields, got %d", n)
	}

	// Style 2 (expounded): two bytes per step.
	cur = wire.NewCursor([]byte{0x42, 0x10, 0x20, 0x30, 0x40}, 0)
	nodes, _, err = DecodeMembers(cur, def.Members, NewScope(nil))
	if err != nil {
		t.Fatalf("style 2 decode failed: %v", err)
	}
	if n := countFields(nodes, "SPqcd"); n != 2 {
		t.Errorf("style 2: expected 2 step fields, got %d", n)
	}

	// Style 3 is undefined and the style drives the width: fatal.
	cur = wire.NewCursor([]byte{0x43, 0x10}, 0)
	_, _, err = DecodeMembers(cur, def.Members, NewScope(nil))
	if !errors.Is(err, syntax.ErrInvalidEnumeration) {
		t.Errorf("expected enumeration error for style 3, got %v", err)
	}
}

func TestComponentIndexWidth(t *testing.T) {
	def, _ := Marker(0xFF5E) // RGN: Crgn, Srgn, SPrgn

	// Few components: one index byte.
	sc := NewScope(nil)
	sc.SetGlobal("Csiz", 3)
	cur := wire.NewCursor([]byte{0x02, 0x00, 0x05}, 0)
	nodes, _, err := DecodeMembers(cur, def.Members, NewScope(sc))
	if err != nil {
		t.Fatalf("narrow index decode failed: %v", err)
	}
	if f := fieldByName(nodes, "Crgn"); f == nil || f.Uint != 2 || f.Width != 1 {
		t.Errorf("narrow index decoded wrong: %+v", f)
	}

	// More than 256 components: two index bytes.
	sc = NewScope(nil)
	sc.SetGlobal("Csiz", 300)
	cur = wire.NewCursor([]byte{0x01, 0x0A, 0x00, 0x05}, 0)
	nodes, _, err = DecodeMembers(cur, def.Members, NewScope(sc))
	if err != nil {
		t.Fatalf("wide index decode failed: %v", err)
	}
	if f := fieldByName(nodes, "Crgn"); f == nil || f.Uint != 0x010A || f.Width != 2 {
		t.Errorf("wide index decoded wrong: %+v", f)
	}
}

func TestEnumViolations(t *testing.T) {
	// ihdr compression_type has enum [7] without strict: a finding.
	def, _ := Box("ihdr")
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(16)) // height
	_ = binary.Write(&buf, binary.BigEndian, uint32(16)) // width
	_ = binary.Write(&buf, binary.BigEndian, uint16(1))  // num_components
	buf.WriteByte(7)  // bits_per_component
	buf.WriteByte(3)  // compression_type, not 7
	buf.WriteByte(0)  // unknown_colourspace
	buf.WriteByte(0)  // intellectual_property

	cur := wire.NewCursor(buf.Bytes(), 0)
	nodes, findings, err := DecodeMembers(cur, def.Members, NewScope(nil))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(findings) != 1 || findings[0].Code != syntax.FindingInvalidEnumeration {
		t.Fatalf("expected one enumeration finding, got %v", findings)
	}
	// The literal value survives.
	if f := fieldByName(nodes, "compression_type"); f == nil || f.Uint != 3 {
		t.Errorf("literal value not preserved: %+v", f)
	}

	// colr method is strict: a violation is fatal.
	def, _ = Box("colr")
	cur = wire.NewCursor([]byte{0x05, 0x00, 0x00}, 0)
	_, _, err = DecodeMembers(cur, def.Members, NewScope(nil))
	if !errors.Is(err, syntax.ErrInvalidEnumeration) {
		t.Errorf("expected fatal enumeration error for colr method, got %v", err)
	}
}

func TestByteBudgetRepeat(t *testing.T) {
	// Repetition bounded by a byte budget named by an earlier field.
	// The termination rule is the consumed byte count, never an element
	// count.
	members := []Member{
		{Name: "size", Kind: "uint", Size: 1},
		{Name: "entry", Kind: "uint", Size: 2, Repeat: &Repeat{BudgetRef: "size"}},
	}

	// Budget 4: exactly two entries.
	cur := wire.NewCursor([]byte{0x04, 0x00, 0x0A, 0x00, 0x0B}, 0)
	nodes, _, err := DecodeMembers(cur, members, NewScope(nil))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n := countFields(nodes, "entry"); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
	if cur.Remaining() != 0 {
		t.Errorf("%d bytes unconsumed", cur.Remaining())
	}

	// Budget 3 cannot be met by two-byte entries: overshoot is a
	// length error.
	cur = wire.NewCursor([]byte{0x03, 0x00, 0x0A, 0x00, 0x0B}, 0)
	_, _, err = DecodeMembers(cur, members, NewScope(nil))
	if !errors.Is(err, syntax.ErrLengthMismatch) {
		t.Errorf("expected length error for overshot budget, got %v", err)
	}

	// Budget 4 with only three bytes left: truncation.
	cur = wire.NewCursor([]byte{0x04, 0x00, 0x0A, 0x00}, 0)
	_, _, err = DecodeMembers(cur, members, NewScope(nil))
	if !errors.Is(err, syntax.ErrTruncatedInput) {
		t.Errorf("expected truncation error, got %v", err)
	}
}

func TestSignatureMagic(t *testing.T) {
	def, _ := Box("jP  ")
	cur := wire.NewCursor([]byte{0x0D, 0x0A, 0x87, 0x0A}, 0)
	if _, _, err := DecodeMembers(cur, def.Members, NewScope(nil)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	cur = wire.NewCursor([]byte{0x0D, 0x0A, 0x87, 0x0B}, 0)
	_, _, err := DecodeMembers(cur, def.Members, NewScope(nil))
	if !errors.Is(err, syntax.ErrInvalidEnumeration) {
		t.Errorf("expected magic mismatch to be fatal, got %v", err)
	}
}

func TestUUIDField(t *testing.T) {
	def, _ := Box("uuid")
	id := []byte{
		0x6E, 0x8C, 0xF2, 0x44, 0xAF, 0x15, 0x42, 0x4C,
		0x8A, 0x8D, 0x9E, 0x7E, 0x1C, 0x40, 0xA9, 0x30,
	}
	data := append(append([]byte{}, id...), 0xDE, 0xAD)
	cur := wire.NewCursor(data, 0)
	nodes, _, err := DecodeMembers(cur, def.Members, NewScope(nil))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	f := fieldByName(nodes, "id")
	if f == nil || f.Kind != syntax.KindUUID {
		t.Fatalf("id field missing: %+v", f)
	}
	if f.Str != "6e8cf244-af15-424c-8a8d-9e7e1c40a930" {
		t.Errorf("uuid rendered as %q", f.Str)
	}
}

func countFields(nodes []syntax.Node, name string) int {
	var n int
	for _, node := range nodes {
		if f, ok := node.(*syntax.Field); ok && f.Name == name {
			n++
		}
	}
	return n
}

func fieldByName(nodes []syntax.Node, name string) *syntax.Field {
	for _, node := range nodes {
		if f, ok := node.(*syntax.Field); ok && f.Name == name {
			return f
		}
	}
	return nil
}
