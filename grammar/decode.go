package grammar

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cocosip/go-jp2-syntax/syntax"
	"github.com/cocosip/go-jp2-syntax/wire"
)

// csizRef is the name under which the size segment exports the component
// count; the cidx field kind widens with it.
const csizRef = "Csiz"

// DecodeMembers walks an ordered member list against the cursor,
// producing the element's field and group nodes. Decoded integer values
// are bound into sc so later members (and later elements, for exported
// values) can reference them.
func DecodeMembers(cur *wire.Cursor, members []Member, sc *Scope) ([]syntax.Node, []syntax.Finding, error) {
	var (
		nodes    []syntax.Node
		findings []syntax.Finding
	)
	for i := range members {
		m := &members[i]
		if m.When != nil {
			ok, err := evalWhen(m.When, sc)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
		}

		appendOne := func() error {
			n, fs, err := decodeOne(cur, m, sc)
			if err != nil {
				return err
			}
			findings = append(findings, fs...)
			if n != nil {
				nodes = append(nodes, n)
			}
			return nil
		}

		switch {
		case m.Repeat == nil:
			if err := appendOne(); err != nil {
				return nil, nil, err
			}

		case m.Repeat.Count > 0:
			for j := 0; j < m.Repeat.Count; j++ {
				if err := appendOne(); err != nil {
					return nil, nil, err
				}
			}

		case m.Repeat.CountRef != "":
			v, ok := sc.Lookup(m.Repeat.CountRef)
			if !ok {
				return nil, nil, fmt.Errorf("grammar: member %s: unresolved count reference %q",
					m.Name, m.Repeat.CountRef)
			}
			count := int(v) + m.Repeat.Plus
			for j := 0; j < count; j++ {
				if err := appendOne(); err != nil {
					return nil, nil, err
				}
			}

		case m.Repeat.Remaining:
			for cur.Remaining() > 0 {
				if err := appendOne(); err != nil {
					return nil, nil, err
				}
			}

		case m.Repeat.BudgetRef != "":
			v, ok := sc.Lookup(m.Repeat.BudgetRef)
			if !ok {
				return nil, nil, fmt.Errorf("grammar: member %s: unresolved budget reference %q",
					m.Name, m.Repeat.BudgetRef)
			}
			budget := int64(v)
			start := cur.Offset()
			for cur.Offset()-start < budget {
				if err := appendOne(); err != nil {
					return nil, nil, err
				}
			}
			if consumed := cur.Offset() - start; consumed != budget {
				return nil, nil, syntax.Errorf(syntax.ErrLengthMismatch, start,
					"member %s: byte budget %d, consumed %d", m.Name, budget, consumed)
			}

		default:
			return nil, nil, fmt.Errorf("grammar: member %s: empty repeat rule", m.Name)
		}
	}
	return nodes, findings, nil
}

// decodeOne decodes a single instance of a member: a group when it has
// sub-members, otherwise a scalar field. A nil node with nil error means
// the member's resolved width is zero (absent by a size switch).
func decodeOne(cur *wire.Cursor, m *Member, sc *Scope) (syntax.Node, []syntax.Finding, error) {
	if len(m.Members) > 0 {
		off := cur.Offset()
		gsc := NewScope(sc)
		ns, fs, err := DecodeMembers(cur, m.Members, gsc)
		if err != nil {
			return nil, nil, err
		}
		return &syntax.Group{
			Info: syntax.Info{
				Offset: off,
				Extent: syntax.Extent{Size: cur.Offset() - off},
			},
			Name:    m.Name,
			Members: ns,
		}, fs, nil
	}
	return decodeField(cur, m, sc)
}

func decodeField(cur *wire.Cursor, m *Member, sc *Scope) (*syntax.Field, []syntax.Finding, error) {
	width, err := fieldWidth(cur, m, sc)
	if err != nil {
		return nil, nil, err
	}
	if width == 0 && m.SizeSwitch != nil {
		// A size switch may select width zero: the field is absent.
		return nil, nil, nil
	}

	off := cur.Offset()
	f := &syntax.Field{
		Info: syntax.Info{
			Offset: off,
			Extent: syntax.Extent{Size: int64(width)},
		},
		Name:  m.Name,
		Width: width,
	}
	var findings []syntax.Finding

	switch m.Kind {
	case "uint", "cidx":
		b, err := cur.Take(width)
		if err != nil {
			return nil, nil, err
		}
		var v uint64
		for _, by := range b {
			v = v<<8 | uint64(by)
		}
		f.Kind = syntax.KindUint
		f.Uint = v
		f.Raw = b
		sc.Set(m.Name, v)
		if m.Export {
			sc.SetGlobal(m.Name, v)
		}
		if fd, err := checkEnum(m, v, off); err != nil {
			return nil, nil, err
		} else if fd != nil {
			findings = append(findings, *fd)
		}

	case "int":
		b, err := cur.Take(width)
		if err != nil {
			return nil, nil, err
		}
		var v uint64
		for _, by := range b {
			v = v<<8 | uint64(by)
		}
		shift := uint(64 - 8*width)
		f.Kind = syntax.KindInt
		f.Int = int64(v<<shift) >> shift
		f.Raw = b
		sc.Set(m.Name, v)

	case "fourcc":
		s, err := cur.FourCC()
		if err != nil {
			return nil, nil, err
		}
		f.Kind = syntax.KindFourCC
		f.Width = 4
		f.Extent.Size = 4
		f.Str = s
		f.Raw = []byte(s)

	case "hex":
		b, err := cur.Take(width)
		if err != nil {
			return nil, nil, err
		}
		f.Kind = syntax.KindHex
		f.Raw = b
		if m.Magic != "" {
			want, err := hex.DecodeString(m.Magic)
			if err != nil {
				return nil, nil, fmt.Errorf("grammar: member %s: bad magic %q", m.Name, m.Magic)
			}
			if !bytes.Equal(b, want) {
				return nil, nil, syntax.Errorf(syntax.ErrInvalidEnumeration, off,
					"field %s: got %x, want %x", m.Name, b, want)
			}
		}

	case "string":
		b, err := cur.Take(width)
		if err != nil {
			return nil, nil, err
		}
		f.Kind = syntax.KindString
		f.Raw = b
		f.Str = string(b)

	case "uri":
		b, err := cur.Take(width)
		if err != nil {
			return nil, nil, err
		}
		f.Kind = syntax.KindURI
		f.Raw = b
		f.Str = strings.TrimRight(string(b), "\x00")

	case "uuid":
		b, err := cur.Take(16)
		if err != nil {
			return nil, nil, err
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, nil, syntax.Errorf(syntax.ErrInvalidEnumeration, off,
				"field %s: %v", m.Name, err)
		}
		f.Kind = syntax.KindUUID
		f.Width = 16
		f.Extent.Size = 16
		f.Raw = b
		f.Str = id.String()

	default:
		return nil, nil, fmt.Errorf("grammar: member %s: unknown kind %q", m.Name, m.Kind)
	}

	return f, findings, nil
}

func fieldWidth(cur *wire.Cursor, m *Member, sc *Scope) (int, error) {
	switch {
	case m.SizeSwitch != nil:
		sw := m.SizeSwitch
		v, ok := sc.Lookup(sw.Ref)
		if !ok {
			return 0, fmt.Errorf("grammar: member %s: unresolved size reference %q", m.Name, sw.Ref)
		}
		sel := v >> sw.Shift
		if sw.Mask != 0 {
			sel &= sw.Mask
		}
		if w, ok := sw.Cases[sel]; ok {
			return w, nil
		}
		if sw.Default != nil {
			return *sw.Default, nil
		}
		return 0, syntax.Errorf(syntax.ErrInvalidEnumeration, cur.Offset(),
			"field %s: selector value %d of %s has no defined width", m.Name, sel, sw.Ref)

	case m.Kind == "cidx":
		// Component indices widen to two bytes once the size segment
		// declares more than 256 components.
		if csiz, ok := sc.Lookup(csizRef); ok && csiz > 256 {
			return 2, nil
		}
		return 1, nil

	case m.Kind == "fourcc":
		return 4, nil

	case m.Kind == "uuid":
		return 16, nil

	case m.Remaining:
		return cur.Remaining(), nil

	default:
		if m.Size <= 0 {
			return 0, fmt.Errorf("grammar: member %s: no size", m.Name)
		}
		return m.Size, nil
	}
}

func evalWhen(w *When, sc *Scope) (bool, error) {
	v, ok := sc.Lookup(w.Ref)
	if !ok {
		return false, fmt.Errorf("grammar: unresolved condition reference %q", w.Ref)
	}
	switch {
	case w.Mask != 0:
		return v&w.Mask != 0, nil
	case w.Equals != nil:
		return v == *w.Equals, nil
	case w.Not != nil:
		return v != *w.Not, nil
	}
	return false, fmt.Errorf("grammar: condition on %q has no rule", w.Ref)
}

func checkEnum(m *Member, v uint64, off int64) (*syntax.Finding, error) {
	if len(m.Enum) == 0 {
		return nil, nil
	}
	for _, allowed := range m.Enum {
		if v == allowed {
			return nil, nil
		}
	}
	if m.Strict {
		return nil, syntax.Errorf(syntax.ErrInvalidEnumeration, off,
			"field %s: value %d outside %v", m.Name, v, m.Enum)
	}
	return &syntax.Finding{
		Code:   syntax.FindingInvalidEnumeration,
		Offset: off,
		Detail: fmt.Sprintf("field %s: value %d outside %v", m.Name, v, m.Enum),
	}, nil
}
