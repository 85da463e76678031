package instance

import (
	"os"
	"path/filepath"
	"testing"

	"gantryd/pkgerr"
)

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	inst, err := New(0, "printer-1", t.TempDir(), []byte("secret"), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { inst.Close() })
	return inst
}

func writeInstanceConfig(t *testing.T, inst *Instance, body string) {
	t.Helper()
	if err := os.WriteFile(inst.configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
}

// loginToken returns a fresh access token for inst, setting a known password
// first.
func loginToken(t *testing.T, inst *Instance) string {
	t.Helper()
	inst.auth.SetPassword("pw")
	toks, err := inst.Login("pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	return toks.AccessToken
}

func TestNewBootstrapsDirectoryLayout(t *testing.T) {
	root := t.TempDir()
	inst, err := New(0, "printer-1", root, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer inst.Close()

	for _, d := range []string{"gcodes", "gcodes/build", "gcodes/thumbnails", "extensions"} {
		if fi, err := os.Stat(filepath.Join(root, "printer-1", d)); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", d, err)
		}
	}
}

func TestValidateTokenStateReflectsLifecycle(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)

	if err := inst.ValidateTokenState(token); err == nil {
		t.Fatal("expected StartupState before Restart")
	}

	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	if err := inst.ValidateTokenState(token); err != nil {
		t.Fatalf("expected Ready state to validate, got %v", err)
	}
}

func TestValidateTokenRejectsBadToken(t *testing.T) {
	inst := newTestInstance(t)
	if err := inst.ValidateToken("not-a-token"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}

func TestGetInfoGatesOnTokenOnly(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)

	// Printer is still in Startup (no Restart yet); GetInfo must still
	// succeed since it gates only on the token, unlike the motion- and
	// filesystem-sensitive operations.
	info, err := inst.GetInfo(token)
	if err != nil {
		t.Fatalf("GetInfo returned error: %v", err)
	}
	if info.State != "startup" {
		t.Fatalf("expected startup state, got %s", info.State)
	}

	if _, err := inst.GetInfo("bogus"); err == nil {
		t.Fatal("expected an error for a bad token")
	}
}

func TestRunGcodeRejectsBadTokenAndNonReadyState(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)

	if err := inst.RunGcode("bogus", "G28"); err == nil {
		t.Fatal("expected an error for a bad token")
	}
	if err := inst.RunGcode(token, "G28"); err == nil {
		t.Fatal("expected an error before Restart (Startup state)")
	}

	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}
	if err := inst.RunGcode(token, "G28"); err != nil {
		t.Fatalf("RunGcode returned error after Restart: %v", err)
	}
}

func TestGetGcodeHelpListsBuiltinHandlers(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)
	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	names, err := inst.GetGcodeHelp(token)
	if err != nil {
		t.Fatalf("GetGcodeHelp returned error: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "G1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected G1 among handler names, got %v", names)
	}
}

func TestUploadAndDownloadFileRoundTrip(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)
	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	body := []byte("G28\nG1 X10 F600\n")
	if err := inst.UploadFile(token, "test.gcode", body, 0); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}

	got, err := inst.DownloadFile(token, "test.gcode")
	if err != nil {
		t.Fatalf("DownloadFile returned error: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("round-tripped file mismatch: got %q want %q", got, body)
	}

	files, err := inst.ListFiles(token)
	if err != nil {
		t.Fatalf("ListFiles returned error: %v", err)
	}
	if len(files) != 1 || files[0] != "test.gcode" {
		t.Fatalf("expected [test.gcode], got %v", files)
	}
}

func TestUploadFileRejectsOverCapacity(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)
	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	err := inst.UploadFile(token, "big.gcode", []byte("0123456789"), 5)
	if err == nil {
		t.Fatal("expected a capacity error")
	}
	perr, ok := err.(*pkgerr.Error)
	if !ok || perr.Code != pkgerr.FileCapacityFull {
		t.Fatalf("expected FileCapacityFull, got %v", err)
	}
}

func TestUploadFileRejectsBeforeReady(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)

	err := inst.UploadFile(token, "early.gcode", []byte("G28\n"), 0)
	if err == nil {
		t.Fatal("expected an error while the printer is still in Startup state")
	}
}

func TestQueuePrintJobOpensAndSpawns(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)
	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	if err := inst.UploadFile(token, "job.gcode", []byte("G1 X10 F600\n"), 0); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}

	id, err := inst.QueuePrintJob(token, "job.gcode")
	if err != nil {
		t.Fatalf("QueuePrintJob returned error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty job ID")
	}
}

func TestScanFileMetadataForcesReparse(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)
	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	path := filepath.Join(inst.root, gcodesDir, "meta.gcode")
	if err := os.WriteFile(path, []byte("; PrusaSlicer 2.6.0 2024-01-01 at 12:00:00\nG28\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	meta, err := inst.GetFileMetadata(token, "meta.gcode")
	if err != nil {
		t.Fatalf("GetFileMetadata returned error: %v", err)
	}
	if meta.Name != "meta.gcode" {
		t.Fatalf("unexpected metadata name: %q", meta.Name)
	}

	if err := os.WriteFile(path, []byte("; PrusaSlicer 2.7.0 2024-02-02 at 13:00:00\nG28\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite fixture: %v", err)
	}

	if err := inst.ScanFileMetadata(token, "meta.gcode"); err != nil {
		t.Fatalf("ScanFileMetadata returned error: %v", err)
	}

	meta, err = inst.GetFileMetadata(token, "meta.gcode")
	if err != nil {
		t.Fatalf("GetFileMetadata returned error: %v", err)
	}
	if meta.SlicerInfo.Version != "2.7.0" {
		t.Fatalf("expected re-scanned version 2.7.0, got %q", meta.SlicerInfo.Version)
	}
}

func TestExtensionRegistryRoundTrip(t *testing.T) {
	inst := newTestInstance(t)
	token := loginToken(t, inst)
	writeInstanceConfig(t, inst, "[printer]\nmax_velocity: 200\nmax_accel: 2000\n")
	if err := inst.Restart(token); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}

	if err := inst.InstallExtension(token, "octoprint-bridge", "enabled: true\n"); err != nil {
		t.Fatalf("InstallExtension returned error: %v", err)
	}

	names, err := inst.ListExtensions(token)
	if err != nil {
		t.Fatalf("ListExtensions returned error: %v", err)
	}
	if len(names) != 1 || names[0] != "octoprint-bridge" {
		t.Fatalf("expected [octoprint-bridge], got %v", names)
	}

	cfg, err := inst.DownloadExtensionConfig(token, "octoprint-bridge")
	if err != nil {
		t.Fatalf("DownloadExtensionConfig returned error: %v", err)
	}
	if cfg != "enabled: true\n" {
		t.Fatalf("unexpected extension config: %q", cfg)
	}

	if err := inst.RemoveExtension(token, "octoprint-bridge"); err != nil {
		t.Fatalf("RemoveExtension returned error: %v", err)
	}
	names, err = inst.ListExtensions(token)
	if err != nil {
		t.Fatalf("ListExtensions returned error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no extensions after removal, got %v", names)
	}
}
