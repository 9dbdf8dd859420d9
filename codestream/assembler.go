package codestream

import (
	"github.com/cocosip/go-jp2-syntax/syntax"
)

// The pointer marker families (PLT/PLM/PPM/PPT) carry tables whose
// termination rule is a byte budget, not an element count, and whose
// records may split across marker occurrences: the running budget and
// the in-progress partial record carry from one segment to the next in
// Z-index order. The assemblers below accumulate those tables; the
// decoder finalizes them at the boundary that closes the series (first
// SOT for main-header tables, SOD for tile-part-header tables).

// varintTable accumulates the 7-bit-continuation packet lengths of the
// PLT and PLM families. Each length is a big-endian base-128 value whose
// continuation bit is the high bit of every byte.
type varintTable struct {
	value   uint64
	started bool
	lengths []uint64
}

func (t *varintTable) feed(data []byte) {
	for _, b := range data {
		t.value = t.value<<7 | uint64(b&0x7F)
		t.started = true
		if b&0x80 == 0 {
			t.lengths = append(t.lengths, t.value)
			t.value = 0
			t.started = false
		}
	}
}

func (t *varintTable) finalize(off int64, name string) ([]uint64, error) {
	if t.started {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, off,
			"%s table ends mid-record", name)
	}
	return t.lengths, nil
}

// plmTable accumulates the PLM family: per tile-part, a one-byte Nplm
// byte budget followed by exactly Nplm bytes of packet-length varints.
// The budget and a partial varint both carry across PLM segments.
type plmTable struct {
	budget  int64
	varints varintTable
}

func (t *plmTable) feed(data []byte) {
	for len(data) > 0 {
		if t.budget == 0 {
			t.budget = int64(data[0])
			data = data[1:]
			continue
		}
		n := t.budget
		if n > int64(len(data)) {
			n = int64(len(data))
		}
		t.varints.feed(data[:n])
		t.budget -= n
		data = data[n:]
	}
}

func (t *plmTable) finalize(off int64) ([]uint64, error) {
	if t.budget != 0 {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, off,
			"PLM table ends with %d budget bytes outstanding", t.budget)
	}
	return t.varints.finalize(off, "PLM")
}

// ppmTable accumulates the PPM family: per tile-part, a four-byte Nppm
// byte budget followed by exactly Nppm bytes of packed packet headers.
// Both the length prefix and the record bytes may split across segments.
type ppmTable struct {
	lenBuf  []byte
	budget  int64
	active  bool
	record  []byte
	records [][]byte
}

func (t *ppmTable) feed(data []byte) {
	for len(data) > 0 {
		if !t.active {
			need := 4 - len(t.lenBuf)
			if need > len(data) {
				t.lenBuf = append(t.lenBuf, data...)
				return
			}
			t.lenBuf = append(t.lenBuf, data[:need]...)
			data = data[need:]
			t.budget = int64(t.lenBuf[0])<<24 | int64(t.lenBuf[1])<<16 |
				int64(t.lenBuf[2])<<8 | int64(t.lenBuf[3])
			t.lenBuf = t.lenBuf[:0]
			t.record = nil
			t.active = true
			continue
		}
		n := t.budget
		if n > int64(len(data)) {
			n = int64(len(data))
		}
		t.record = append(t.record, data[:n]...)
		t.budget -= n
		data = data[n:]
		if t.budget == 0 {
			t.records = append(t.records, t.record)
			t.record = nil
			t.active = false
		}
	}
}

func (t *ppmTable) finalize(off int64) ([][]byte, error) {
	if len(t.lenBuf) != 0 {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, off,
			"PPM table ends mid-length-prefix")
	}
	if t.active {
		return nil, syntax.Errorf(syntax.ErrTruncatedInput, off,
			"PPM table ends with %d budget bytes outstanding", t.budget)
	}
	return t.records, nil
}
