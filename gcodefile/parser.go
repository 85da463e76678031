package gcodefile

import (
	"bufio"
	"encoding/base64"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// Parse parses an entire in-memory G-code file.
func Parse(data []byte) (*GcodeFile, error) {
	return ParseStream(strings.NewReader(string(data)))
}

// ParseStream parses a slicer G-code file one line at a time, never holding
// more than one thumbnail's worth of base64 payload in memory at once.
func ParseStream(r io.Reader) (*GcodeFile, error) {
	br := bufio.NewReader(r)
	gf := &GcodeFile{Config: SlicerConfig{Properties: make(map[string]string)}}
	sawSlicerInfo := false

	var pending string
	havePending := false

	for {
		var trimmed string
		var eof bool
		if havePending {
			trimmed = pending
			havePending = false
		} else {
			line, err := br.ReadString('\n')
			trimmed = strings.TrimRight(line, "\r\n")
			eof = err != nil
		}

		if trimmed != "" {
			if handled, thumb := tryParseThumbnailBegin(trimmed); handled {
				t, leftover, derr := readThumbnail(br, thumb)
				if derr != nil {
					return nil, derr
				}
				if t != nil {
					gf.Thumbnails = append(gf.Thumbnails, *t)
				}
				if leftover != "" {
					// The thumbnail was aborted by a line that isn't a
					// continuation or end marker; resume top-level parsing
					// from it instead of discarding it.
					pending = leftover
					havePending = true
					continue
				}
			} else if strings.HasPrefix(trimmed, ";") {
				body := strings.TrimSpace(trimmed[1:])
				if body != "" {
					if key, value, ok := splitMetaLine(body); ok {
						if !applyMetaKey(&gf.Meta, key, value) {
							gf.Config.Properties[key] = value
						}
					} else if !sawSlicerInfo {
						gf.Slicer = parseSlicerInfo(body)
						sawSlicerInfo = true
					}
				}
			} else {
				gf.Commands = append(gf.Commands, parseGcodeLine(trimmed))
			}
		}

		if eof {
			break
		}
	}

	return gf, nil
}

func parseSlicerInfo(body string) SlicerInfo {
	fields := strings.Fields(body)
	info := SlicerInfo{}
	if len(fields) > 0 {
		info.Slicer = fields[0]
	}
	if len(fields) > 1 {
		info.Version = fields[1]
	}
	if len(fields) > 2 {
		info.Date = fields[2]
	}
	if len(fields) > 3 {
		info.Time = strings.Join(fields[3:], " ")
	}
	return info
}

// splitMetaLine recognises a "key = value" comment line.
func splitMetaLine(body string) (key, value string, ok bool) {
	idx := strings.Index(body, "=")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(body[:idx])
	value = strings.TrimSpace(body[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// applyMetaKey stores value under the recognised Meta field for key,
// returning false if key is not one of the recognised metadata keys (in
// which case the caller stores it in SlicerConfig instead).
func applyMetaKey(m *Meta, key, value string) bool {
	switch strings.ToLower(key) {
	case "filament used [mm]":
		m.FilamentLengthUsed = parseMetaFloat(value)
	case "filament used [cm3]":
		m.FilamentVolumeUsed = parseMetaFloat(value)
	case "filament used [g]":
		m.FilamentWeightUsed = parseMetaFloat(value)
	case "filament cost":
		m.FilamentCost = parseMetaFloat(value)
	case "total filament used [mm]":
		m.TotalFilamentLengthUsed = parseMetaFloat(value)
	case "total filament used [cm3]":
		m.TotalFilamentVolumeUsed = parseMetaFloat(value)
	case "total filament used [g]":
		m.TotalFilamentWeightUsed = parseMetaFloat(value)
	case "total filament cost":
		m.TotalFilamentCost = parseMetaFloat(value)
	case "total layers count":
		if n, err := strconv.ParseUint(value, 10, 32); err == nil {
			v := uint32(n)
			m.TotalLayersCount = &v
		}
	case "total filament used [wipe tower]":
		m.TotalFilamentUsedWipeTower = parseMetaFloat(value)
	case "estimated printing time (normal mode)":
		if d, ok := parseDuration(strings.ReplaceAll(value, " ", "")); ok {
			m.EstimatedPrintTime = &d
		}
	case "estimated first layer printing time (normal mode)":
		if d, ok := parseDuration(strings.ReplaceAll(value, " ", "")); ok {
			m.EstimatedFirstLayerPrintTime = &d
		}
	default:
		return false
	}
	return true
}

func parseMetaFloat(value string) *float64 {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseCommandLine tokenises a single operational G-code line into a
// GcodeCommand, the same tokeniser ParseStream uses for file-based parsing.
// Callers that execute G-code one line at a time (e.g. a console or REPL)
// should use this instead of rolling their own tokeniser.
func ParseCommandLine(line string) GcodeCommand {
	return parseGcodeLine(line)
}

// parseGcodeLine tokenises one operational line into a GcodeCommand.
func parseGcodeLine(line string) GcodeCommand {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	tokens, err := shlex.Split(line)
	if err != nil || len(tokens) == 0 {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return GcodeCommand{}
		}
		return GcodeCommand{Cmd: fields[0], Params: fields[1:]}
	}

	return GcodeCommand{Cmd: tokens[0], Params: tokens[1:]}
}

// thumbnailHeader is the parsed "; thumbnail begin WxH N" line.
type thumbnailHeader struct {
	Width, Height uint32
	ByteCount     int
}

func tryParseThumbnailBegin(line string) (bool, thumbnailHeader) {
	if !strings.HasPrefix(line, ";") {
		return false, thumbnailHeader{}
	}
	body := strings.TrimSpace(line[1:])
	fields := strings.Fields(body)
	if len(fields) != 4 || fields[0] != "thumbnail" || fields[1] != "begin" {
		return false, thumbnailHeader{}
	}
	dims := strings.SplitN(fields[2], "x", 2)
	if len(dims) != 2 {
		return false, thumbnailHeader{}
	}
	w, err1 := strconv.ParseUint(dims[0], 10, 32)
	h, err2 := strconv.ParseUint(dims[1], 10, 32)
	n, err3 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return false, thumbnailHeader{}
	}
	return true, thumbnailHeader{Width: uint32(w), Height: uint32(h), ByteCount: n}
}

// readThumbnail streams continuation lines until the end marker, discarding
// (returning nil thumbnail) if the thumbnail is never terminated. If a line
// that is neither a continuation nor the end marker is encountered, the
// thumbnail is aborted and that line is returned as leftover so the caller
// can re-dispatch it through the normal top-level classification instead of
// losing it.
func readThumbnail(br *bufio.Reader, hdr thumbnailHeader) (thumb *Thumbnail, leftover string, err error) {
	var b64 strings.Builder
	ended := false

	for {
		line, rerr := br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		if trimmed == "; thumbnail end" {
			ended = true
			break
		}
		if strings.HasPrefix(trimmed, ";") {
			b64.WriteString(strings.TrimSpace(trimmed[1:]))
		} else {
			leftover = trimmed
			break
		}

		if rerr != nil {
			break
		}
	}

	if !ended {
		return nil, leftover, nil
	}

	data, derr := base64.StdEncoding.DecodeString(b64.String())
	if derr != nil {
		return nil, leftover, nil
	}

	return &Thumbnail{Width: hdr.Width, Height: hdr.Height, Data: data}, "", nil
}
