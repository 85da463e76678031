package gvm

import (
	"strings"

	"gantryd/gcodefile"
)

// command is one dispatch-ready G-code line: its upper-cased command name
// (e.g. "G1", "M104") plus its parameter letters, reusing the teacher's
// byte-keyed parameter map style rather than per-axis struct fields.
type command struct {
	Name       string
	Parameters map[byte]float64
}

func (c *command) name() string {
	if c == nil {
		return ""
	}
	return c.Name
}

func (c *command) has(param byte) bool {
	_, ok := c.Parameters[param]
	return ok
}

func (c *command) get(param byte, def float64) float64 {
	if v, ok := c.Parameters[param]; ok {
		return v
	}
	return def
}

// fromGcodeCommand builds a dispatch-ready command from an already-tokenised
// gcodefile.GcodeCommand (the single tokeniser shared by file-based and
// one-shot execution; see ParseCommandLine), parsing each "<letter><value>"
// parameter token into the Parameters map. Returns nil for blank/comment
// lines and for command names that aren't a letter in {G,M,T} followed by
// digits, matching the grammar's own command-name shape.
func fromGcodeCommand(gc gcodefile.GcodeCommand) *command {
	name := strings.ToUpper(gc.Cmd)
	if len(name) < 2 {
		return nil
	}
	switch name[0] {
	case 'G', 'M', 'T':
	default:
		return nil
	}
	for _, r := range name[1:] {
		if r < '0' || r > '9' {
			return nil
		}
	}

	cmd := &command{Name: name, Parameters: make(map[byte]float64)}
	for _, tok := range gc.Params {
		if len(tok) < 2 {
			continue
		}
		paramLetter := tok[0]
		if paramLetter >= 'a' && paramLetter <= 'z' {
			paramLetter -= 'a' - 'A'
		}
		if paramLetter < 'A' || paramLetter > 'Z' {
			continue
		}
		if v, ok := parseFloatFast(tok[1:]); ok {
			cmd.Parameters[paramLetter] = v
		}
	}
	return cmd
}

func parseFloatFast(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '-' {
		neg = true
		i++
	} else if s[0] == '+' {
		i++
	}
	var intPart float64
	seenDigit := false
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		intPart = intPart*10 + float64(s[i]-'0')
		seenDigit = true
	}
	var frac float64
	var div float64 = 1
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			frac = frac*10 + float64(s[i]-'0')
			div *= 10
			seenDigit = true
		}
	}
	if !seenDigit || i != len(s) {
		return 0, false
	}
	v := intPart + frac/div
	if neg {
		v = -v
	}
	return v, true
}
