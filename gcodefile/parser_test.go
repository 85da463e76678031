package gcodefile

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestParseSlicerInfoAndMeta(t *testing.T) {
	src := "; OrcaSlicer 2.2.0 on 2024-01-01 at 12:00:00\n" +
		"; filament used [mm] = 3701.23\n" +
		"; total layers count = 240\n" +
		"; estimated printing time (normal mode) = 45m 43s\n" +
		"G28\n"

	gf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if gf.Slicer.Slicer != "OrcaSlicer" || gf.Slicer.Version != "2.2.0" {
		t.Fatalf("unexpected slicer info: %+v", gf.Slicer)
	}
	if gf.Meta.FilamentLengthUsed == nil || *gf.Meta.FilamentLengthUsed != 3701.23 {
		t.Fatalf("unexpected filament length: %+v", gf.Meta.FilamentLengthUsed)
	}
	if gf.Meta.TotalLayersCount == nil || *gf.Meta.TotalLayersCount != 240 {
		t.Fatalf("unexpected layer count: %+v", gf.Meta.TotalLayersCount)
	}
	if gf.Meta.EstimatedPrintTime == nil || *gf.Meta.EstimatedPrintTime != 45*60+43 {
		t.Fatalf("unexpected estimated print time: %+v", gf.Meta.EstimatedPrintTime)
	}
	if len(gf.Commands) != 1 || gf.Commands[0].Cmd != "G28" {
		t.Fatalf("unexpected commands: %+v", gf.Commands)
	}
}

func TestUnrecognisedMetaKeyGoesToConfig(t *testing.T) {
	src := "; my custom option = some value\n"
	gf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if gf.Config.Properties["my custom option"] != "some value" {
		t.Fatalf("expected config fallback, got %+v", gf.Config.Properties)
	}
}

func TestThumbnailRoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	encoded := base64.StdEncoding.EncodeToString(payload)

	src := "; thumbnail begin 32x32 " + itoaTest(len(encoded)) + "\n" +
		"; " + encoded + "\n" +
		"; thumbnail end\n" +
		"G1 X1\n"

	gf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(gf.Thumbnails) != 1 {
		t.Fatalf("expected 1 thumbnail, got %d", len(gf.Thumbnails))
	}
	th := gf.Thumbnails[0]
	if th.Width != 32 || th.Height != 32 {
		t.Fatalf("unexpected dimensions: %+v", th)
	}
	if string(th.Data) != string(payload) {
		t.Fatalf("unexpected decoded data: %v", th.Data)
	}
	if len(gf.Commands) != 1 || gf.Commands[0].Cmd != "G1" {
		t.Fatalf("unexpected commands: %+v", gf.Commands)
	}
}

func TestUnterminatedThumbnailIsDiscarded(t *testing.T) {
	src := "; thumbnail begin 32x32 8\n" +
		"; AAAA\n" +
		"G1 X1\n"

	gf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(gf.Thumbnails) != 0 {
		t.Fatalf("expected unterminated thumbnail to be discarded, got %+v", gf.Thumbnails)
	}
	if len(gf.Commands) != 1 || gf.Commands[0].Cmd != "G1" {
		t.Fatalf("expected the line that aborted the thumbnail to resume top-level parsing, got %+v", gf.Commands)
	}
}

func TestGcodeLineStripsTrailingComment(t *testing.T) {
	gf, err := Parse([]byte("G1 X10 Y20 ; move to start\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(gf.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(gf.Commands))
	}
	cmd := gf.Commands[0]
	if cmd.Cmd != "G1" || strings.Join(cmd.Params, " ") != "X10 Y20" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
