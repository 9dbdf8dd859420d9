// Package grammar is the schema-driven registry mapping every box type
// and marker code to its structural definition: the ordered member list
// with multiplicities, named count references, byte budgets and
// flag-gated members. The grammar itself is a declarative YAML document
// embedded in the binary and resolved once at startup; the decoders hold
// no positional knowledge of their own.
package grammar

// Role classifies how a box's content is decoded.
type Role string

const (
	// RoleLeaf boxes carry scalar fields and groups, decoded member by
	// member.
	RoleLeaf Role = "leaf"

	// RoleSuper boxes contain child boxes and nothing else.
	RoleSuper Role = "super"

	// RoleCodestream marks the contiguous-codestream box, whose content
	// is the marker-segment sequence.
	RoleCodestream Role = "codestream"
)

// Def is the structural definition of one box type or marker code.
type Def struct {
	// Name is the mnemonic used for node tags (signature, SIZ, COD...).
	Name string `yaml:"name"`

	// Type is the 4-character box type code. Empty for markers.
	Type string `yaml:"type,omitempty"`

	// Code is the two-byte marker code. Zero for boxes.
	Code uint16 `yaml:"code,omitempty"`

	// Role applies to boxes only.
	Role Role `yaml:"role,omitempty"`

	// Delimiter marks length-less markers (SOC, SOD, EOC).
	Delimiter bool `yaml:"delimiter,omitempty"`

	// Assemble names the cross-segment table family (plt, plm, ppm, ppt)
	// whose opaque table member is concatenated across marker
	// occurrences and interpreted by the codestream decoder.
	Assemble string `yaml:"assemble,omitempty"`

	Members []Member `yaml:"members,omitempty"`
}

// Member is one entry in an element's ordered member list: a scalar
// field, or a repeated group when Members is non-empty.
type Member struct {
	Name string `yaml:"name"`

	// Kind is one of uint, int, hex, fourcc, string, uri, uuid, cidx.
	// cidx is a component index whose width follows the component count
	// declared in the size segment (2 bytes when Csiz > 256, else 1).
	Kind string `yaml:"kind,omitempty"`

	// Size is the fixed byte width. Zero when Remaining or SizeSwitch
	// determines the width.
	Size int `yaml:"size,omitempty"`

	// Remaining widths the field to all bytes left in the enclosing
	// element. Also marks optional trailing members: a remaining field
	// with zero bytes left simply does not appear.
	Remaining bool `yaml:"remaining,omitempty"`

	// SizeSwitch derives the byte width from a previously decoded value.
	SizeSwitch *SizeSwitch `yaml:"size_switch,omitempty"`

	// Export publishes the decoded value into the file-global scope so
	// later elements can reference it (the size segment's component
	// count is the canonical case).
	Export bool `yaml:"export,omitempty"`

	// Magic is the required hex value of a hex field (the signature box
	// content). A mismatch is fatal.
	Magic string `yaml:"magic,omitempty"`

	// Enum is the closed set of legal values for an integer field.
	Enum []uint64 `yaml:"enum,omitempty"`

	// Strict makes an enum violation fatal. Set on fields whose value
	// drives further parsing; elsewhere the violation is a finding and
	// the literal value is kept.
	Strict bool `yaml:"strict,omitempty"`

	// When gates the member on a previously decoded value.
	When *When `yaml:"when,omitempty"`

	// Repeat gives the member's multiplicity. Nil means exactly one.
	Repeat *Repeat `yaml:"repeat,omitempty"`

	// Members makes this a repeated group rather than a scalar field.
	Members []Member `yaml:"members,omitempty"`
}

// When is a conditional-presence rule: the member exists only if the
// referenced value, masked or compared, satisfies the rule.
type When struct {
	Ref string `yaml:"ref"`

	// Mask selects the member when (value & Mask) != 0.
	Mask uint64 `yaml:"mask,omitempty"`

	// Equals selects the member when value == *Equals.
	Equals *uint64 `yaml:"equals,omitempty"`

	// Not selects the member when value != *Not.
	Not *uint64 `yaml:"not,omitempty"`
}

// Repeat bounds a repeated member. Exactly one of the bounds is set.
type Repeat struct {
	// Count is a fixed repetition count.
	Count int `yaml:"count,omitempty"`

	// CountRef repeats the member (value-of-ref + Plus) times. The
	// reference resolves against the current element's scope, then its
	// enclosing elements, then the file-global exports.
	CountRef string `yaml:"count_ref,omitempty"`
	Plus     int    `yaml:"plus,omitempty"`

	// Remaining repeats until the enclosing element's bytes run out.
	Remaining bool `yaml:"remaining,omitempty"`

	// BudgetRef repeats until exactly value-of-ref bytes have been
	// consumed by the repetitions. The termination rule is the byte
	// budget, never an element count; running out of input mid-budget is
	// a truncation error.
	BudgetRef string `yaml:"budget_ref,omitempty"`
}

// Scope is a chain of name -> value bindings used to resolve count,
// budget, width and condition references. Each element decode pushes a
// scope; lookups walk outward to the enclosing element and finally the
// file-global exports.
type Scope struct {
	parent *Scope
	vals   map[string]uint64
}

// NewScope returns a scope nested in parent (nil for the file-global
// scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vals: make(map[string]uint64)}
}

// Set binds a value in this scope.
func (s *Scope) Set(name string, v uint64) { s.vals[name] = v }

// SetGlobal binds a value in the outermost scope.
func (s *Scope) SetGlobal(name string, v uint64) {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	root.vals[name] = v
}

// Lookup resolves a name against this scope and its ancestors.
func (s *Scope) Lookup(name string) (uint64, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vals[name]; ok {
			return v, true
		}
	}
	return 0, false
}

// SizeSwitch maps a previously decoded value to a byte width, e.g. the
// tile-part length segment whose record widths follow its Stlm byte, or
// the quantization tables whose step-size width follows the style bits.
// A width of zero means the field is absent entirely.
type SizeSwitch struct {
	Ref   string         `yaml:"ref"`
	Shift uint           `yaml:"shift,omitempty"`
	Mask  uint64         `yaml:"mask,omitempty"`
	Cases map[uint64]int `yaml:"cases"`

	// Default applies when the masked value matches no case. Without a
	// default, an unmatched value is a fatal enumeration error.
	Default *int `yaml:"default,omitempty"`
}
