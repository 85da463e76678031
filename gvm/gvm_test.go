package gvm

import (
	"testing"

	"gantryd/action"
	"gantryd/gcodefile"
)

func newTestGVM(t *testing.T) (*GVM, *action.Queue, chan action.PrinterEvent) {
	t.Helper()
	out := make(chan action.PrinterEvent, 16)
	st := action.NewState()
	q := action.NewQueue(st, out, nil)
	return New(q, st, nil), q, out
}

func drain(ch chan action.PrinterEvent) []action.PrinterEvent {
	var got []action.PrinterEvent
	for {
		select {
		case e := <-ch:
			got = append(got, e)
		default:
			return got
		}
	}
}

func TestRunGcodeStringEmitsMoveAndFlushes(t *testing.T) {
	g, _, out := newTestGVM(t)

	if err := g.RunGcodeString("G1 X10 F600"); err != nil {
		t.Fatalf("RunGcodeString returned error: %v", err)
	}

	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("expected 1 emission, got %d", len(got))
	}
	if got[0].Action.Kind != action.KindKinematicMove {
		t.Fatalf("expected KinematicMove, got %+v", got[0].Action.Kind)
	}
}

func TestG90G91ToggleAbsoluteMode(t *testing.T) {
	g, _, _ := newTestGVM(t)

	if err := g.RunGcodeString("G91"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.state.AbsolutePosition() {
		t.Fatal("expected relative positioning after G91")
	}

	if err := g.RunGcodeString("G90"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.state.AbsolutePosition() {
		t.Fatal("expected absolute positioning after G90")
	}
}

func TestG92SetsPositionWithoutEmission(t *testing.T) {
	g, _, out := newTestGVM(t)

	if err := g.RunGcodeString("G92 X0 Y0 Z0 E0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x, y, z, e := g.state.Position(); x != 0 || y != 0 || z != 0 || e != 0 {
		t.Fatalf("unexpected position after G92: %v %v %v %v", x, y, z, e)
	}
	if got := drain(out); len(got) != 0 {
		t.Fatalf("expected no emissions from G92, got %d", len(got))
	}
}

func TestM104QueuesSetExtruderTempWithoutWait(t *testing.T) {
	g, _, out := newTestGVM(t)

	if err := g.RunGcodeString("M104 S200"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drain(out)
	if len(got) != 1 || got[0].Action.Kind != action.KindPrinterSetExtruderTemp {
		t.Fatalf("expected SetExtruderTemp emission, got %+v", got)
	}
	if got[0].Action.Temp != 200 {
		t.Fatalf("expected temp 200, got %v", got[0].Action.Temp)
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	g, _, _ := newTestGVM(t)

	if err := g.RunGcodeString("G999"); err == nil {
		t.Fatal("expected an error for an unregistered command")
	}
}

func TestRunGcodeFileDispatchesParsedCommandsAndTracksProgress(t *testing.T) {
	g, _, out := newTestGVM(t)

	gf, err := gcodefile.Parse([]byte("G28\nG1 X10 F600\nM104 S200\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if err := g.RunGcodeFile(gf); err != nil {
		t.Fatalf("RunGcodeFile returned error: %v", err)
	}

	got := drain(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 emissions (move + temp), got %d: %+v", len(got), got)
	}
	if line := g.state.GcodeLine(); line != uint64(len(gf.Commands)) {
		t.Fatalf("expected gcode_line %d, got %d", len(gf.Commands), line)
	}
}

func TestRunGcodeFileSkipsWhileSuspended(t *testing.T) {
	g, _, out := newTestGVM(t)
	g.Suspend()

	gf, err := gcodefile.Parse([]byte("G1 X10 F600\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if err := g.RunGcodeFile(gf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drain(out); len(got) != 0 {
		t.Fatalf("expected no emissions while suspended, got %d", len(got))
	}
}

func TestSuspendSkipsRemainingLines(t *testing.T) {
	g, _, out := newTestGVM(t)
	g.Suspend()

	if err := g.RunGcodeString("G1 X10 F600"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drain(out); len(got) != 0 {
		t.Fatalf("expected no emissions while suspended, got %d", len(got))
	}

	g.Resume()
	if err := g.RunGcodeString("G1 X10 F600"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drain(out); len(got) != 1 {
		t.Fatalf("expected 1 emission after resume, got %d", len(got))
	}
}
