// Package syntax defines the structured tree produced by decoding a JP2
// file: a box tree for the container format and a marker-segment sequence
// for the embedded codestream.
//
// The tree is built once per decode pass and is not mutated afterwards.
// Consumers (tree serializers, pixel pipelines) read it; they do not
// restructure it in place.
package syntax

// Kind identifies the semantic type of a scalar Field.
type Kind uint8

const (
	// KindUint is a fixed-width big-endian unsigned integer.
	KindUint Kind = iota

	// KindInt is a fixed-width big-endian signed integer.
	KindInt

	// KindHex is an opaque byte run preserved verbatim.
	KindHex

	// KindFourCC is a 4-character type code (printable ASCII, space
	// permitted).
	KindFourCC

	// KindString is character data (the XML box payload, comment text).
	KindString

	// KindURI is a URI, possibly null-terminated on the wire.
	KindURI

	// KindUUID is a 16-byte UUID (uuid box IDs, ulst entries).
	KindUUID
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindHex:
		return "hexbyte"
	case KindFourCC:
		return "fourcc"
	case KindString:
		return "string"
	case KindURI:
		return "uri"
	case KindUUID:
		return "uuid"
	}
	return "unknown"
}

// Extent is a declared content length. The zero-length "extends to end of
// stream" case of the box format is an explicit tagged state rather than a
// magic size value.
type Extent struct {
	// ToEnd marks the box-format sentinel meaning "content runs to the
	// end of the enclosing stream". Legal only for the last top-level box.
	ToEnd bool

	// Size is the declared content byte count when ToEnd is false.
	Size int64
}

// Info carries the placement metadata every node exposes: the offset of
// its first content byte within the decoded stream and its declared
// content extent.
type Info struct {
	Offset int64
	Extent Extent
}

// NodeInfo returns the node's placement metadata.
func (i *Info) NodeInfo() *Info { return i }

// Node is the single unifying entity of the decoded tree. Concrete
// variants are Container (boxes), Segment (marker segments), Group
// (a repeated sub-structure inside a segment or leaf box) and Field
// (scalar leaves).
type Node interface {
	// Tag names the node: the 4CC for containers, the marker mnemonic
	// for segments, the grammar member name for groups and fields.
	Tag() string

	NodeInfo() *Info
}

// Container is a box of the JP2 container format.
type Container struct {
	Info

	// Type is the 4-character box type code.
	Type string

	// Ext records that the box used the extended (XLBox) 16-byte header,
	// so re-encoding reproduces the original header width.
	Ext bool

	// Children holds nested boxes for super boxes, or decoded Fields and
	// Groups for leaf boxes. Empty for opaque boxes.
	Children []Node

	// Raw holds the verbatim payload of boxes captured opaquely:
	// unknown/vendor boxes and the compressed remainder of boxes the
	// grammar does not model deeply.
	Raw []byte

	// Unknown flags a box whose type code is absent from the grammar.
	// Such boxes are tolerated, never silently absorbed: the flag makes
	// the tolerance observable in the output.
	Unknown bool
}

func (c *Container) Tag() string { return c.Type }

// Child returns the first direct child container with the given type
// code, or nil.
func (c *Container) Child(typ string) *Container {
	for _, n := range c.Children {
		if b, ok := n.(*Container); ok && b.Type == typ {
			return b
		}
	}
	return nil
}

// Field returns the first direct child field with the given name, or nil.
func (c *Container) Field(name string) *Field {
	return findField(c.Children, name)
}

// Segment is one marker segment of the codestream.
type Segment struct {
	Info

	// Marker is the two-byte marker code.
	Marker uint16

	// Name is the marker mnemonic (SIZ, COD, ...), or a hex rendering
	// for codes outside the known catalog.
	Name string

	// Delimiter marks the length-less markers (SOC, SOD, EOC): they
	// consume only the two code bytes and Extent is meaningless.
	Delimiter bool

	// Unknown flags a marker code absent from the grammar; its body is
	// captured as a single opaque hex field.
	Unknown bool

	// Members holds the decoded fields and repeated groups in wire order.
	Members []Node
}

func (s *Segment) Tag() string { return s.Name }

// Field returns the first direct member field with the given name, or nil.
func (s *Segment) Field(name string) *Field {
	return findField(s.Members, name)
}

// Groups returns all direct member groups with the given name.
func (s *Segment) Groups(name string) []*Group {
	var out []*Group
	for _, n := range s.Members {
		if g, ok := n.(*Group); ok && g.Name == name {
			out = append(out, g)
		}
	}
	return out
}

// Group is one instance of a repeated sub-structure: one per-component
// triple of a size segment, one tile-part length record, one palette
// column description.
type Group struct {
	Info

	Name    string
	Members []Node
}

func (g *Group) Tag() string { return g.Name }

// Field returns the first member field with the given name, or nil.
func (g *Group) Field(name string) *Field {
	return findField(g.Members, name)
}

// Field is a scalar leaf: a decoded value plus its exact source bytes.
type Field struct {
	Info

	Name string
	Kind Kind

	// Width is the on-wire byte width. For Hex/String/URI/UUID fields it
	// equals len(Raw).
	Width int

	// Uint holds the value for KindUint fields.
	Uint uint64

	// Int holds the value for KindInt fields.
	Int int64

	// Str holds the rendered value for FourCC, String, URI and UUID
	// fields.
	Str string

	// Raw is the verbatim source byte range.
	Raw []byte
}

func (f *Field) Tag() string { return f.Name }

func findField(nodes []Node, name string) *Field {
	for _, n := range nodes {
		if f, ok := n.(*Field); ok && f.Name == name {
			return f
		}
	}
	return nil
}
