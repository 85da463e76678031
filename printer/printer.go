// Package printer implements the per-instance lifecycle state machine and
// event loop, grounded on original_source/gantry/src/printer/printer.rs.
package printer

import (
	"context"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"gantryd/action"
	"gantryd/config"
	"gantryd/gvm"
	"gantryd/pkgerr"
)

// eventBacklog is the buffer size of the PrinterEvent channel described in
// SPEC_FULL.md section 4.5.
const eventBacklog = 4096

// Printer owns the lifecycle state machine, the shared ActionState/
// ActionQueue/GVM trio, the print job queue, and the event-loop goroutine.
type Printer struct {
	mu    sync.RWMutex
	state State

	actionState *action.State
	actionQueue *action.Queue
	vm          *gvm.GVM
	driver      Driver

	events chan action.PrinterEvent

	jobsMu sync.RWMutex
	jobs   []PrintJob

	cancel context.CancelFunc

	log *logrus.Entry
}

// New constructs a Printer in the Startup state with no running event loop.
// Call Restart to load configuration and bring it to Ready.
func New(driver Driver, log *logrus.Entry) *Printer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	events := make(chan action.PrinterEvent, eventBacklog)
	st := action.NewState()
	queue := action.NewQueue(st, events, log)
	vm := gvm.New(queue, st, log)

	return &Printer{
		state:       State{Kind: StateStartup},
		actionState: st,
		actionQueue: queue,
		vm:          vm,
		driver:      driver,
		events:      events,
		log:         log,
	}
}

// State returns the current lifecycle state.
func (p *Printer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Printer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Restart reads and parses configPath, resets the motion subsystems, and
// (re)spawns the event loop, moving the Printer to Ready. A failure at any
// step moves it to Error instead and returns the error.
func (p *Printer) Restart(configPath string) error {
	p.setState(State{Kind: StateStartup})

	data, err := os.ReadFile(configPath)
	if err != nil {
		p.setState(State{Kind: StateError, ErrorCode: pkgerr.FileNotFound, ErrorMessage: err.Error()})
		return err
	}

	cfg, err := config.Parse(data)
	if err != nil {
		p.setState(State{Kind: StateError, ErrorCode: pkgerr.PrinterConfigParseError, ErrorMessage: err.Error()})
		return err
	}

	applyPrinterConfig(cfg, p.actionState)

	p.actionQueue.Clear()
	p.actionQueue.Resume()
	p.vm.Resume()

	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.runEventLoop(ctx)

	p.setState(State{Kind: StateReady})
	return nil
}

// EmergencyStop synchronously halts the event loop, suspends the
// ActionQueue and the GVM, and moves to Shutdown. It returns only after all
// three effects are visible to other goroutines.
func (p *Printer) EmergencyStop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.actionQueue.Suspend()
	p.vm.Suspend()
	p.setState(State{Kind: StateShutdown})
}

// RunGcodeString runs s directly against the GVM, synchronous with respect
// to dispatch, outside of the print job queue.
func (p *Printer) RunGcodeString(s string) error {
	return p.vm.RunGcodeString(s)
}

// SpawnPrintJob enqueues job and kicks the event loop if it is idle.
func (p *Printer) SpawnPrintJob(job PrintJob) {
	p.jobsMu.Lock()
	p.jobs = append(p.jobs, job)
	p.jobsMu.Unlock()

	if !p.actionState.GcodeRunning() {
		p.postEvent(action.PrinterEvent{Kind: action.EventRunNextPrintJob})
	}
}

// EndstopStatus is a read-through query to the physical-driver collaborator.
func (p *Printer) EndstopStatus() (x, y, z bool) {
	return p.driver.EndstopStatus()
}

// Position is a read-through query to the shared ActionState.
func (p *Printer) Position() (x, y, z, e float64) {
	return p.actionState.Position()
}

// Homed reports whether axis (0=x, 1=y, 2=z) has been homed.
func (p *Printer) Homed(axis int) bool {
	return p.actionState.Homed(axis)
}

// GcodeRunning reports whether a file-backed print job is currently
// dispatching commands.
func (p *Printer) GcodeRunning() bool {
	return p.actionState.GcodeRunning()
}

// GcodeLine is a read-through query to the shared ActionState, counting
// lines dispatched by the current or most recent RunGcodeFile call.
func (p *Printer) GcodeLine() uint64 {
	return p.actionState.GcodeLine()
}

// ExcludeObjects lists the object names in ActionState's exclude-object set
// (filled through action.State.AddExcludeObject; no built-in G-code handler
// adds to it).
func (p *Printer) ExcludeObjects() []string {
	return p.actionState.ExcludeObjects()
}

// HandlerNames lists the GVM's registered command names.
func (p *Printer) HandlerNames() []string {
	return p.vm.HandlerNames()
}

// PauseJob suspends the ActionQueue and GVM without the hard EmergencyStop
// barrier: the lifecycle state is left at Ready and the event loop keeps
// running, so ResumeJob can bring motion back without a full Restart.
func (p *Printer) PauseJob() {
	p.actionQueue.Suspend()
	p.vm.Suspend()
}

// ResumeJob reverses PauseJob.
func (p *Printer) ResumeJob() {
	p.actionQueue.Resume()
	p.vm.Resume()
}

// CancelJob suspends motion (which, per the GVM's skip-not-block suspend
// semantics, lets any in-flight RunGcodeFile loop drain its remaining lines
// without dispatching them), drops every queued job, clears the held
// look-ahead move, and resumes so the Printer is ready to accept new work.
func (p *Printer) CancelJob() {
	p.vm.Suspend()
	p.actionQueue.Suspend()

	p.jobsMu.Lock()
	p.jobs = nil
	p.jobsMu.Unlock()

	p.actionQueue.Clear()
	p.actionQueue.Resume()
	p.vm.Resume()
}

// JobQueue returns the IDs of currently queued (not yet running) print jobs.
func (p *Printer) JobQueue() []string {
	p.jobsMu.RLock()
	defer p.jobsMu.RUnlock()
	ids := make([]string, len(p.jobs))
	for i, j := range p.jobs {
		ids[i] = j.ID
	}
	return ids
}

// DeleteQueuedJob removes a not-yet-running job by ID. It reports whether a
// matching job was found and removed.
func (p *Printer) DeleteQueuedJob(id string) bool {
	p.jobsMu.Lock()
	defer p.jobsMu.Unlock()
	for i, j := range p.jobs {
		if j.ID == id {
			p.jobs = append(p.jobs[:i], p.jobs[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Printer) postEvent(ev action.PrinterEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn("printer event channel full, dropping event")
	}
}

func (p *Printer) runEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			switch ev.Kind {
			case action.EventAction:
				p.driver.Send(ev.Action)
			case action.EventRunNextPrintJob:
				p.runNextPrintJob()
			}
		}
	}
}

func (p *Printer) runNextPrintJob() {
	if p.actionState.GcodeRunning() {
		return
	}

	p.jobsMu.Lock()
	if len(p.jobs) == 0 {
		p.jobsMu.Unlock()
		return
	}
	job := p.jobs[0]
	p.jobs = p.jobs[1:]
	remaining := len(p.jobs)
	p.jobsMu.Unlock()

	p.actionState.SetGcodeRunning(true)

	if err := p.vm.RunGcodeFile(job.File); err != nil {
		p.log.WithError(err).WithField("job", job.ID).Warn("print job aborted on handler error")
	}

	p.actionState.SetGcodeRunning(false)

	if remaining > 0 {
		p.postEvent(action.PrinterEvent{Kind: action.EventRunNextPrintJob})
	}
}

func applyPrinterConfig(cfg *config.Config, st *action.State) {
	for _, sec := range cfg.Sections {
		if sec.PrefixName != "printer" {
			continue
		}
		if v, ok := sec.Values["max_velocity"]; ok && v.Kind == config.KindNumber {
			st.SetMaxVelocity(v.Number)
		}
		if v, ok := sec.Values["max_accel"]; ok && v.Kind == config.KindNumber {
			st.SetMaxAccel(v.Number)
		}
		if v, ok := sec.Values["square_corner_velocity"]; ok && v.Kind == config.KindNumber {
			st.SetSquareCornerVelocity(v.Number)
		}
		if v, ok := sec.Values["minimum_cruise_ratio"]; ok && v.Kind == config.KindNumber {
			st.SetMinimumCruiseRatio(v.Number)
		}
	}
}
