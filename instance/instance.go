// Package instance implements the per-printer facade: directory bootstrap,
// token-gated access to the underlying Printer, and the supplemented
// operation surface described in SPEC_FULL.md section 4.7, grounded on
// original_source/gantry/src/printer/instance.rs.
package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gantryd/auth"
	"gantryd/driver"
	"gantryd/filecache"
	"gantryd/gcodefile"
	"gantryd/pkgerr"
	"gantryd/printer"
)

const (
	gcodesDir      = "gcodes"
	buildDir       = "gcodes/build"
	thumbnailsDir  = "gcodes/thumbnails"
	extensionsDir  = "extensions"
	configFileName = "printer.cfg"
)

// Instance is one printer's facade: its name, its on-disk root, and the
// Printer/Auth/Driver/filecache collaborators scoped to it.
type Instance struct {
	Index int
	Name  string

	root       string
	configPath string

	auth    *auth.Service
	driver  *driver.Bridge
	printer *printer.Printer
	cache   *filecache.Cache

	log *logrus.Entry
}

// New bootstraps `<root>/<name>/` (printer.cfg is NOT created -- it is
// user-provided configuration -- but gcodes/, gcodes/build/,
// gcodes/thumbnails/ and extensions/ are, matching instance.rs's create()),
// and constructs the Printer/Auth/Driver/filecache collaborators around it.
func New(index int, name, root string, jwtSecret []byte, log *logrus.Entry) (*Instance, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	instRoot := filepath.Join(root, name)

	for _, d := range []string{gcodesDir, buildDir, thumbnailsDir, extensionsDir} {
		if err := os.MkdirAll(filepath.Join(instRoot, d), 0o755); err != nil {
			return nil, fmt.Errorf("instance: failed to bootstrap %s: %w", d, err)
		}
	}

	cache, err := filecache.New(log.WithField("component", "filecache"))
	if err != nil {
		return nil, fmt.Errorf("instance: failed to start file-watch cache: %w", err)
	}

	bridge, err := driver.NewBridge(driver.DefaultMachineConfig(), log.WithField("component", "driver"))
	if err != nil {
		return nil, fmt.Errorf("instance: failed to construct driver bridge: %w", err)
	}

	inst := &Instance{
		Index:      index,
		Name:       name,
		root:       instRoot,
		configPath: filepath.Join(instRoot, configFileName),
		auth:       auth.NewService(name, jwtSecret),
		driver:     bridge,
		printer:    printer.New(bridge, log.WithField("component", "printer")),
		cache:      cache,
		log:        log,
	}
	return inst, nil
}

// Close releases the instance's background resources (file-watch worker,
// driver connection).
func (i *Instance) Close() error {
	i.cache.Close()
	return i.driver.Close()
}

// ---- Token gating ----

// ValidateToken maps the Auth collaborator's verdict onto the pkgerr
// taxonomy; nil means the token is valid.
func (i *Instance) ValidateToken(token string) error {
	return i.auth.ValidateToken(token)
}

// ValidateTokenState additionally requires the Printer to be Ready,
// surfacing the current lifecycle state (or stored error) otherwise.
func (i *Instance) ValidateTokenState(token string) error {
	if err := i.ValidateToken(token); err != nil {
		return err
	}

	st := i.printer.State()
	switch st.Kind {
	case printer.StateReady:
		return nil
	case printer.StateStartup:
		return pkgerr.New(pkgerr.StartupState, "printer is starting up")
	case printer.StateShutdown:
		return pkgerr.New(pkgerr.ShutdownState, "printer is shut down")
	case printer.StateError:
		return pkgerr.New(st.ErrorCode, st.ErrorMessage)
	default:
		return pkgerr.New(pkgerr.GenericError, "unknown printer state")
	}
}

// ---- Auth pass-through ----
//
// Login, Logout, ResetPassword and RefreshToken are how a caller obtains or
// manages a token in the first place, so unlike every other operation below
// they are not themselves token-gated.

func (i *Instance) Login(password string) (*auth.Tokens, error) { return i.auth.Login(password) }
func (i *Instance) Logout() error                                { return i.auth.Logout() }
func (i *Instance) ResetPassword(newPassword string) error       { return i.auth.ResetPassword(newPassword) }
func (i *Instance) RefreshToken(refreshToken string) (*auth.Tokens, error) {
	return i.auth.RefreshToken(refreshToken)
}

// ---- Lifecycle (token-only gate) ----

// Restart re-reads and re-parses printer.cfg from the instance directory.
func (i *Instance) Restart(token string) error {
	if err := i.ValidateToken(token); err != nil {
		return err
	}
	return i.printer.Restart(i.configPath)
}

// EmergencyStop halts the Printer synchronously.
func (i *Instance) EmergencyStop(token string) error {
	if err := i.ValidateToken(token); err != nil {
		return err
	}
	i.printer.EmergencyStop()
	return nil
}

// GetInfo maps the Printer's lifecycle state and ActionState onto an Info
// snapshot. It gates only on the token: a caller must be able to observe
// Startup/Error/Shutdown state, not just Ready.
func (i *Instance) GetInfo(token string) (Info, error) {
	if err := i.ValidateToken(token); err != nil {
		return Info{}, err
	}
	st := i.printer.State()
	x, y, z, e := i.printer.Position()
	return Info{
		State:        stateName(st.Kind),
		ErrorCode:    st.ErrorCode,
		ErrorMessage: st.ErrorMessage,
		GcodeRunning: i.printer.GcodeRunning(),
		GcodeLine:    i.printer.GcodeLine(),
		X:            x, Y: y, Z: z, E: e,
		HomedX:       i.printer.Homed(0),
		HomedY:       i.printer.Homed(1),
		HomedZ:       i.printer.Homed(2),
	}, nil
}

// ---- Status (token+state gate) ----

// GetTemperatures is a read-through query to the physical-driver
// collaborator.
func (i *Instance) GetTemperatures(token string) (bed float64, extruders map[int]float64, err error) {
	if err := i.ValidateTokenState(token); err != nil {
		return 0, nil, err
	}
	bed, extruders = i.driver.Temperatures()
	return bed, extruders, nil
}

// QueryEndstops is a read-through query to the physical-driver collaborator.
func (i *Instance) QueryEndstops(token string) (x, y, z bool, err error) {
	if err := i.ValidateTokenState(token); err != nil {
		return false, false, false, err
	}
	x, y, z = i.printer.EndstopStatus()
	return x, y, z, nil
}

// ListObjects reports the object names in the Printer's exclude-object set;
// no built-in G-code handler adds to that set.
func (i *Instance) ListObjects(token string) ([]string, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	return i.printer.ExcludeObjects(), nil
}

// ---- Gcode API (token+state gate) ----

// RunGcode dispatches a one-shot G-code string directly through the VM.
func (i *Instance) RunGcode(token, gcode string) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	if err := i.printer.RunGcodeString(gcode); err != nil {
		return pkgerr.Wrap(pkgerr.GcodeParseError, err)
	}
	return nil
}

// GetGcodeHelp lists the command names with a registered VM handler.
func (i *Instance) GetGcodeHelp(token string) ([]string, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	names := i.printer.HandlerNames()
	sort.Strings(names)
	return names, nil
}

// ---- Print job queue (token+state gate) ----

// QueuePrintJob opens filename through the file-watch cache and enqueues it;
// SpawnPrintJob starts it immediately if the Printer is idle.
func (i *Instance) QueuePrintJob(token, filename string) (jobID string, err error) {
	if err := i.ValidateTokenState(token); err != nil {
		return "", err
	}
	path := filepath.Join(i.root, gcodesDir, filename)
	gf, err := i.cache.Open(path)
	if err != nil {
		return "", pkgerr.Wrap(pkgerr.FileNotFound, err)
	}

	id := uuid.NewString()
	i.printer.SpawnPrintJob(printer.PrintJob{ID: id, File: gf})
	return id, nil
}

// StartPrintJob is an alias for QueuePrintJob: SpawnPrintJob already starts
// the job immediately when the Printer is idle, so there is no separate
// "queue but don't start" primitive to distinguish at this layer.
func (i *Instance) StartPrintJob(token, filename string) (jobID string, err error) {
	return i.QueuePrintJob(token, filename)
}

// PausePrintJob suspends motion without the hard EmergencyStop barrier.
func (i *Instance) PausePrintJob(token string) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	i.printer.PauseJob()
	return nil
}

// ResumePrintJob reverses PausePrintJob.
func (i *Instance) ResumePrintJob(token string) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	i.printer.ResumeJob()
	return nil
}

// CancelPrintJob aborts the in-flight job (if any) and drops the queue.
func (i *Instance) CancelPrintJob(token string) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	i.printer.CancelJob()
	return nil
}

// GetPrintJobStatus reports whether a job is running and what remains
// queued.
func (i *Instance) GetPrintJobStatus(token string) (PrintJobStatus, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return PrintJobStatus{}, err
	}
	return PrintJobStatus{
		Running: i.printer.GcodeRunning(),
		Queued:  i.printer.JobQueue(),
	}, nil
}

// ListJobQueue returns the IDs of not-yet-running queued jobs.
func (i *Instance) ListJobQueue(token string) ([]string, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	return i.printer.JobQueue(), nil
}

// DeleteQueuedPrintJob removes a not-yet-running job by ID.
func (i *Instance) DeleteQueuedPrintJob(token, id string) (bool, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return false, err
	}
	return i.printer.DeleteQueuedJob(id), nil
}

// PauseJobQueue and ResumeJobQueue are aliases for Pause/ResumePrintJob:
// this module has a single job queue per Printer, so "pause the queue" and
// "pause the running job" are the same operation.
func (i *Instance) PauseJobQueue(token string) error  { return i.PausePrintJob(token) }
func (i *Instance) ResumeJobQueue(token string) error { return i.ResumePrintJob(token) }

// ---- Gcode files (token+state gate) ----

// ListFiles lists the .gcode files directly under the instance's gcodes/
// directory.
func (i *Instance) ListFiles(token string) ([]string, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(i.root, gcodesDir))
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.FileReadError, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".gcode") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// GetFileMetadata returns the cached parse of filename's slicer-info and
// meta headers, reusing the file-watch cache so repeated metadata queries
// don't re-parse the file.
func (i *Instance) GetFileMetadata(token, filename string) (*FileMetadata, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	path := filepath.Join(i.root, gcodesDir, filename)
	gf, err := i.cache.Open(path)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.FileNotFound, err)
	}
	return toFileMetadata(filename, gf), nil
}

// ScanFileMetadata forces a re-scan of filename, discarding any cached
// parse, even if it was already scanned. It reports only whether the scan
// succeeded; callers read the result back through GetFileMetadata.
func (i *Instance) ScanFileMetadata(token, filename string) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	path := filepath.Join(i.root, gcodesDir, filename)
	if err := i.cache.Invalidate(path); err != nil {
		return pkgerr.Wrap(pkgerr.FileReadError, err)
	}
	if _, err := i.cache.Open(path); err != nil {
		return pkgerr.Wrap(pkgerr.FileNotFound, err)
	}
	return nil
}

func toFileMetadata(filename string, gf *gcodefile.GcodeFile) *FileMetadata {
	return &FileMetadata{
		Name: filename,
		SlicerInfo: SlicerInfoView{
			Slicer:  gf.Slicer.Slicer,
			Version: gf.Slicer.Version,
			Date:    gf.Slicer.Date,
			Time:    gf.Slicer.Time,
		},
		Meta: MetaView{
			EstimatedPrintTimeSeconds: gf.Meta.EstimatedPrintTime,
			TotalLayersCount:          gf.Meta.TotalLayersCount,
			TotalFilamentLengthUsed:   gf.Meta.TotalFilamentLengthUsed,
		},
	}
}

// UploadFile writes data to `<root>/gcodes/<filename>`, refusing to exceed
// maxFileBytes.
func (i *Instance) UploadFile(token, filename string, data []byte, maxFileBytes int) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	if maxFileBytes > 0 && len(data) > maxFileBytes {
		return pkgerr.New(pkgerr.FileCapacityFull, "file exceeds the configured capacity")
	}
	path := filepath.Join(i.root, gcodesDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pkgerr.Wrap(pkgerr.FileReadError, err)
	}
	return nil
}

// DownloadFile reads `<root>/gcodes/<filename>` in full.
func (i *Instance) DownloadFile(token, filename string) ([]byte, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	path := filepath.Join(i.root, gcodesDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.FileNotFound, err)
	}
	return data, nil
}

// DownloadPrinterConfig reads the instance's printer.cfg verbatim.
func (i *Instance) DownloadPrinterConfig(token string) ([]byte, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(i.configPath)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.FileNotFound, err)
	}
	return data, nil
}

// UploadPrinterConfig overwrites the instance's printer.cfg. It does not
// itself trigger a Restart; callers that want the new config applied call
// Restart afterwards.
func (i *Instance) UploadPrinterConfig(token string, data []byte) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	if err := os.WriteFile(i.configPath, data, 0o644); err != nil {
		return pkgerr.Wrap(pkgerr.FileReadError, err)
	}
	return nil
}

// ---- Extensions (token+state gate) ----
//
// instance.rs names Extensions operations with no described format or
// storage model anywhere in the original source; this is a deliberately
// thin directory-backed registry (one `<name>.cfg` file per extension under
// `extensions/`), sufficient to satisfy the interface without inventing
// business logic it was never given a spec for.

// ListExtensions lists the names of installed extensions.
func (i *Instance) ListExtensions(token string) ([]string, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(i.root, extensionsDir))
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.FileReadError, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".cfg"))
	}
	return names, nil
}

// InstallExtension writes config to `extensions/<name>.cfg`.
func (i *Instance) InstallExtension(token, name, config string) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	return os.WriteFile(i.extensionPath(name), []byte(config), 0o644)
}

// RemoveExtension deletes an installed extension's config file.
func (i *Instance) RemoveExtension(token, name string) error {
	if err := i.ValidateTokenState(token); err != nil {
		return err
	}
	if err := os.Remove(i.extensionPath(name)); err != nil {
		return pkgerr.Wrap(pkgerr.FileNotFound, err)
	}
	return nil
}

// DownloadExtensionConfig reads an installed extension's config file.
func (i *Instance) DownloadExtensionConfig(token, name string) (string, error) {
	if err := i.ValidateTokenState(token); err != nil {
		return "", err
	}
	data, err := os.ReadFile(i.extensionPath(name))
	if err != nil {
		return "", pkgerr.Wrap(pkgerr.FileNotFound, err)
	}
	return string(data), nil
}

// UploadExtensionConfig overwrites an installed extension's config file.
func (i *Instance) UploadExtensionConfig(token, name, config string) error {
	return i.InstallExtension(token, name, config)
}

func (i *Instance) extensionPath(name string) string {
	return filepath.Join(i.root, extensionsDir, name+".cfg")
}
