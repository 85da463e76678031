// Package gcodefile implements the streaming parser for slicer-produced
// G-code files: header metadata, embedded thumbnails, slicer config, and the
// operational G-code command stream, grounded on
// original_source/gantry/src/gcode/parser.rs.
package gcodefile

// GcodeFile is the fully parsed representation of one slicer output file.
type GcodeFile struct {
	Slicer    SlicerInfo
	Thumbnails []Thumbnail
	Meta      Meta
	Config    SlicerConfig
	Commands  []GcodeCommand
}

// SlicerInfo is the single comment header line naming the producing slicer.
type SlicerInfo struct {
	Slicer  string
	Version string
	Date    string
	Time    string
}

// Thumbnail is one embedded preview image, base64-decoded from contiguous
// comment lines between a begin and an end marker.
type Thumbnail struct {
	Width  uint32
	Height uint32
	Data   []byte
}

// Meta aggregates the recognised slicer metadata comment lines.
type Meta struct {
	FilamentLengthUsed      *float64
	FilamentVolumeUsed      *float64
	FilamentWeightUsed      *float64
	FilamentCost            *float64
	TotalFilamentLengthUsed *float64
	TotalFilamentVolumeUsed *float64
	TotalFilamentWeightUsed *float64
	TotalFilamentCost       *float64
	TotalLayersCount        *uint32
	TotalFilamentUsedWipeTower *float64
	// EstimatedPrintTime and EstimatedFirstLayerPrintTime are seconds,
	// parsed from an "<u64>h<u64>m<u64>s" expression.
	EstimatedPrintTime           *uint64
	EstimatedFirstLayerPrintTime *uint64
}

// SlicerConfig holds the remaining recognised-but-not-Meta "; key = value"
// comment lines, keyed verbatim.
type SlicerConfig struct {
	Properties map[string]string
}

// GcodeCommand is one operational line: the first whitespace-delimited token
// plus the remaining space-separated tokens, trailing ';' comments removed.
type GcodeCommand struct {
	Cmd    string
	Params []string
}
