package wire

import (
	"bytes"
	"fmt"

	"github.com/cocosip/go-jp2-syntax/syntax"
)

// Encode serializes a decoded node back to its wire form. For any
// well-formed input, re-encoding the tree decoded from it reproduces the
// original bytes: integer and 4CC fields are rebuilt from their semantic
// values, opaque kinds from their preserved source bytes, and box and
// segment headers from the recorded extent and header width.
func Encode(n syntax.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendNode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeAll serializes a node sequence, e.g. the top-level box list of a
// file or the marker segments of a codestream.
func EncodeAll(nodes []syntax.Node) ([]byte, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := appendNode(&buf, n); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func appendNode(buf *bytes.Buffer, n syntax.Node) error {
	switch v := n.(type) {
	case *syntax.Container:
		return appendContainer(buf, v)
	case *syntax.Segment:
		return appendSegment(buf, v)
	case *syntax.Group:
		for _, m := range v.Members {
			if err := appendNode(buf, m); err != nil {
				return err
			}
		}
		return nil
	case *syntax.Field:
		return appendField(buf, v)
	}
	return fmt.Errorf("unsupported node type %T", n)
}

func appendContainer(buf *bytes.Buffer, c *syntax.Container) error {
	var body bytes.Buffer
	if len(c.Children) > 0 {
		for _, ch := range c.Children {
			if err := appendNode(&body, ch); err != nil {
				return err
			}
		}
	} else {
		body.Write(c.Raw)
	}

	switch {
	case c.Extent.ToEnd:
		putUint(buf, 4, 0)
		buf.WriteString(c.Type)
	case c.Ext:
		putUint(buf, 4, 1)
		buf.WriteString(c.Type)
		putUint(buf, 8, uint64(body.Len())+16)
	default:
		putUint(buf, 4, uint64(body.Len())+8)
		buf.WriteString(c.Type)
	}
	buf.Write(body.Bytes())
	return nil
}

func appendSegment(buf *bytes.Buffer, s *syntax.Segment) error {
	putUint(buf, 2, uint64(s.Marker))
	if s.Delimiter {
		return nil
	}
	var body bytes.Buffer
	for _, m := range s.Members {
		if err := appendNode(&body, m); err != nil {
			return err
		}
	}
	putUint(buf, 2, uint64(body.Len())+2)
	buf.Write(body.Bytes())
	return nil
}

func appendField(buf *bytes.Buffer, f *syntax.Field) error {
	switch f.Kind {
	case syntax.KindUint:
		putUint(buf, f.Width, f.Uint)
	case syntax.KindInt:
		putUint(buf, f.Width, uint64(f.Int))
	case syntax.KindFourCC:
		if len(f.Str) != 4 {
			return fmt.Errorf("field %s: fourcc %q is not 4 bytes", f.Name, f.Str)
		}
		buf.WriteString(f.Str)
	case syntax.KindHex, syntax.KindString, syntax.KindURI, syntax.KindUUID:
		buf.Write(f.Raw)
	default:
		return fmt.Errorf("field %s: unsupported kind %v", f.Name, f.Kind)
	}
	return nil
}

func putUint(buf *bytes.Buffer, width int, v uint64) {
	for i := width - 1; i >= 0; i-- {
		buf.WriteByte(byte(v >> (8 * uint(i))))
	}
}
