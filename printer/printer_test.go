package printer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gantryd/action"
	"gantryd/gcodefile"
)

type fakeDriver struct {
	sent chan action.PrinterAction
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{sent: make(chan action.PrinterAction, 64)}
}

func (d *fakeDriver) Send(a action.PrinterAction)        { d.sent <- a }
func (d *fakeDriver) EndstopStatus() (bool, bool, bool) { return true, true, false }

func writeConfig(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "printer.cfg")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return path
}

func TestRestartMovesToReadyAndAppliesConfig(t *testing.T) {
	driver := newFakeDriver()
	p := New(driver, nil)

	if p.State().Kind != StateStartup {
		t.Fatalf("expected initial Startup state, got %v", p.State().Kind)
	}

	cfgPath := writeConfig(t, t.TempDir(), "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")

	if err := p.Restart(cfgPath); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}
	if p.State().Kind != StateReady {
		t.Fatalf("expected Ready state, got %v", p.State().Kind)
	}
	if p.actionState.MaxVelocity() != 200 {
		t.Fatalf("expected max_velocity 200, got %v", p.actionState.MaxVelocity())
	}
}

func TestRestartMissingFileMovesToError(t *testing.T) {
	p := New(newFakeDriver(), nil)

	if err := p.Restart(filepath.Join(t.TempDir(), "missing.cfg")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
	if p.State().Kind != StateError {
		t.Fatalf("expected Error state, got %v", p.State().Kind)
	}
}

func TestRunGcodeStringDeliversActionToDriver(t *testing.T) {
	driver := newFakeDriver()
	p := New(driver, nil)
	cfgPath := writeConfig(t, t.TempDir(), "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := p.Restart(cfgPath); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	if err := p.RunGcodeString("G1 X10 F600"); err != nil {
		t.Fatalf("RunGcodeString returned error: %v", err)
	}

	select {
	case a := <-driver.sent:
		if a.Kind != action.KindKinematicMove {
			t.Fatalf("expected KinematicMove, got %+v", a.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for driver to receive the move")
	}
}

func TestSpawnPrintJobRunsFileAgainstDriver(t *testing.T) {
	driver := newFakeDriver()
	p := New(driver, nil)
	cfgPath := writeConfig(t, t.TempDir(), "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := p.Restart(cfgPath); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	gf, err := gcodefile.Parse([]byte("G1 X10 F600\nG1 X20\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	p.SpawnPrintJob(PrintJob{ID: "job-1", File: gf})

	select {
	case <-driver.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the print job to deliver an action")
	}
}

func TestEmergencyStopSuspendsQueueAndVM(t *testing.T) {
	driver := newFakeDriver()
	p := New(driver, nil)
	cfgPath := writeConfig(t, t.TempDir(), "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := p.Restart(cfgPath); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	p.EmergencyStop()

	if p.State().Kind != StateShutdown {
		t.Fatalf("expected Shutdown state, got %v", p.State().Kind)
	}
	if err := p.RunGcodeString("G1 X10 F600"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case a := <-driver.sent:
		t.Fatalf("expected no action after emergency stop, got %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}
