// Package codestream decodes the marker-segment sequence of a JPEG 2000
// codestream (ISO/IEC 15444-1 Annex A) into the structural node tree.
// Compressed tile-part payloads are captured as opaque byte ranges;
// entropy-coded content is not interpreted here.
package codestream

// Marker codes, ISO/IEC 15444-1 Table A.1.

// Delimiting markers.
const (
	// MarkerSOC - Start of codestream
	MarkerSOC uint16 = 0xFF4F

	// MarkerSOT - Start of tile-part
	MarkerSOT uint16 = 0xFF90

	// MarkerSOD - Start of data
	MarkerSOD uint16 = 0xFF93

	// MarkerEOC - End of codestream
	MarkerEOC uint16 = 0xFFD9
)

// Fixed information marker segments.
const (
	// MarkerSIZ - Image and tile size
	MarkerSIZ uint16 = 0xFF51
)

// Functional marker segments.
const (
	// MarkerCOD - Coding style default
	MarkerCOD uint16 = 0xFF52

	// MarkerCOC - Coding style component
	MarkerCOC uint16 = 0xFF53

	// MarkerRGN - Region of interest
	MarkerRGN uint16 = 0xFF5E

	// MarkerQCD - Quantization default
	MarkerQCD uint16 = 0xFF5C

	// MarkerQCC - Quantization component
	MarkerQCC uint16 = 0xFF5D

	// MarkerPOC - Progression order change
	MarkerPOC uint16 = 0xFF5F
)

// Pointer marker segments.
const (
	// MarkerTLM - Tile-part lengths
	MarkerTLM uint16 = 0xFF55

	// MarkerPLM - Packet length, main header
	MarkerPLM uint16 = 0xFF57

	// MarkerPLT - Packet length, tile-part header
	MarkerPLT uint16 = 0xFF58

	// MarkerPPM - Packed packet headers, main header
	MarkerPPM uint16 = 0xFF60

	// MarkerPPT - Packed packet headers, tile-part header
	MarkerPPT uint16 = 0xFF61
)

// In-bitstream markers.
const (
	// MarkerSOP - Start of packet
	MarkerSOP uint16 = 0xFF91

	// MarkerEPH - End of packet header
	MarkerEPH uint16 = 0xFF92
)

// Informational marker segments.
const (
	// MarkerCRG - Component registration
	MarkerCRG uint16 = 0xFF63

	// MarkerCOM - Comment
	MarkerCOM uint16 = 0xFF64
)

// Part 2 multi-component transform markers (ISO/IEC 15444-2).
const (
	MarkerMCT uint16 = 0xFF74 // Multi-component transform definition
	MarkerMCC uint16 = 0xFF75 // Multiple component collection
	MarkerMCO uint16 = 0xFF77 // MCT ordering
)
