package config

import "strings"

// Kind identifies which alternative of the Value grammar production matched.
//
// NumberArray and StringArray from the data model (section 3) are not separate
// grammar branches here -- nothing in the original source or this grammar
// defines how they are lexically distinguished from a Ratio's chained ',' or
// from a bare String, so they are modeled as derived views over a String
// value (see AsNumberArray/AsStringArray) rather than invented grammar.
type Kind int

const (
	KindNumber Kind = iota
	KindRatio
	KindString
	KindGcode
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindRatio:
		return "Ratio"
	case KindString:
		return "String"
	case KindGcode:
		return "Gcode"
	default:
		return "Unknown"
	}
}

// Value is a single parsed config value.
type Value struct {
	Kind   Kind
	Number float64 // valid for KindNumber and KindRatio
	Str    string  // valid for KindString and KindGcode
}

// AsNumberArray splits a String value on ',' and parses each element as a
// Number. It is a convenience view, not a distinct grammar alternative.
func (v Value) AsNumberArray() ([]float64, bool) {
	if v.Kind != KindString {
		return nil, false
	}
	parts := strings.Split(v.Str, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		n, ok := parseNumber(newStream([]byte(strings.TrimSpace(p))))
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// AsStringArray splits a String value on ',', trimming surrounding whitespace
// from each element.
func (v Value) AsStringArray() ([]string, bool) {
	if v.Kind != KindString {
		return nil, false
	}
	parts := strings.Split(v.Str, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out, true
}
