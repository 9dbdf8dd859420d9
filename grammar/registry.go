package grammar

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed grammar.yaml
var grammarYAML []byte

type document struct {
	Boxes   []Def `yaml:"boxes"`
	Markers []Def `yaml:"markers"`
}

// Registry holds the resolved grammar: one canonical definition per box
// type and per marker code. It is built once and treated as read-only
// process-wide configuration; concurrent decodes share it freely.
type Registry struct {
	boxes   map[string]*Def
	markers map[uint16]*Def
}

var registry = sync.OnceValue(load)

func load() *Registry {
	var doc document
	if err := yaml.Unmarshal(grammarYAML, &doc); err != nil {
		panic(fmt.Sprintf("grammar: embedded grammar does not parse: %v", err))
	}
	r := &Registry{
		boxes:   make(map[string]*Def, len(doc.Boxes)),
		markers: make(map[uint16]*Def, len(doc.Markers)),
	}
	for i := range doc.Boxes {
		d := &doc.Boxes[i]
		if len(d.Type) != 4 {
			panic(fmt.Sprintf("grammar: box %q: type code must be 4 characters", d.Name))
		}
		if _, dup := r.boxes[d.Type]; dup {
			panic(fmt.Sprintf("grammar: duplicate box type %q", d.Type))
		}
		r.boxes[d.Type] = d
	}
	for i := range doc.Markers {
		d := &doc.Markers[i]
		if d.Code == 0 {
			panic(fmt.Sprintf("grammar: marker %q: missing code", d.Name))
		}
		if _, dup := r.markers[d.Code]; dup {
			panic(fmt.Sprintf("grammar: duplicate marker code 0x%04X", d.Code))
		}
		r.markers[d.Code] = d
	}
	return r
}

// Box returns the definition for a box type code. ok is false for
// unknown (vendor/private) types; the caller captures those opaquely.
func Box(typ string) (def *Def, ok bool) {
	def, ok = registry().boxes[typ]
	return def, ok
}

// Marker returns the definition for a marker code. ok is false for codes
// outside the catalog.
func Marker(code uint16) (def *Def, ok bool) {
	def, ok = registry().markers[code]
	return def, ok
}

// IsDelimiter reports whether code is a length-less marker.
func IsDelimiter(code uint16) bool {
	d, ok := registry().markers[code]
	return ok && d.Delimiter
}

// MarkerName returns the marker mnemonic, or a hex rendering for codes
// outside the catalog.
func MarkerName(code uint16) string {
	if d, ok := registry().markers[code]; ok {
		return d.Name
	}
	return fmt.Sprintf("0x%04X", code)
}
