// Package gvm implements the G-code virtual machine: a command-name to
// handler dispatch table with cooperative suspend/resume, grounded on
// original_source/gantry/src/gcode/vm.rs and standalone/gcode/interpreter.go.
package gvm

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"gantryd/action"
	"gantryd/gcodefile"
)

type handlerFunc func(*GVM, *command) error

// GVM dispatches parsed G-code commands against a handler table, pushing
// motion and thermal intents onto an ActionQueue.
type GVM struct {
	handlers map[string]handlerFunc
	queue    *action.Queue
	state    *action.State
	log      *logrus.Entry

	suspended atomic.Bool
}

// New returns a GVM with the built-in G0/G1/G28/G90/G91/G92/M82/M83/M104/
// M109/M140/M190/M114/M105 handlers registered.
func New(queue *action.Queue, state *action.State, log *logrus.Entry) *GVM {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	g := &GVM{
		handlers: make(map[string]handlerFunc),
		queue:    queue,
		state:    state,
		log:      log,
	}
	g.registerBuiltins()
	return g
}

// RegisterHandler installs or overrides a handler for a command name such as
// "G1" or "M117". Command names are case-sensitive and always uppercase.
func (g *GVM) RegisterHandler(name string, h handlerFunc) {
	g.handlers[name] = h
}

// HandlerNames returns the command names with a registered handler, for the
// Instance facade's GetGcodeHelp.
func (g *GVM) HandlerNames() []string {
	names := make([]string, 0, len(g.handlers))
	for name := range g.handlers {
		names = append(names, name)
	}
	return names
}

func (g *GVM) registerBuiltins() {
	g.handlers["G0"] = handleMove
	g.handlers["G1"] = handleMove
	g.handlers["G28"] = handleHome
	g.handlers["G90"] = handleAbsolute
	g.handlers["G91"] = handleRelative
	g.handlers["G92"] = handleSetPosition
	g.handlers["M82"] = handleAbsoluteExtrusion
	g.handlers["M83"] = handleRelativeExtrusion
	g.handlers["M104"] = handleSetExtruderTemp
	g.handlers["M109"] = handleSetExtruderTempWait
	g.handlers["M140"] = handleSetBedTemp
	g.handlers["M190"] = handleSetBedTempWait
	g.handlers["M114"] = handleReportPosition
	g.handlers["M105"] = handleReportTemperature
}

// Suspend pauses dispatch: while suspended, RunGcodeFile and RunGcodeString
// return nil at their next command boundary instead of invoking a handler.
// They do not block waiting for Resume.
func (g *GVM) Suspend() { g.suspended.Store(true) }
func (g *GVM) Resume()  { g.suspended.Store(false) }
func (g *GVM) IsSuspended() bool { return g.suspended.Load() }

// RunGcodeFile executes every command of an already-parsed slicer G-code
// file in order, tracking progress in ActionState's gcode_line counter, and
// flushes the ActionQueue after the last command. If the GVM is suspended it
// returns nil at the next command boundary, dispatching no further commands
// and not flushing.
func (g *GVM) RunGcodeFile(file *gcodefile.GcodeFile) error {
	g.state.SetGcodeLine(0)
	var count uint64

	for _, gc := range file.Commands {
		if g.suspended.Load() {
			return nil
		}
		if err := g.dispatch(gc); err != nil {
			return err
		}
		count++
		g.state.SetGcodeLine(count)
	}
	g.queue.Flush()
	return nil
}

// RunGcodeString executes a multi-line G-code string and then flushes the
// ActionQueue. If the GVM is suspended partway through it returns nil
// immediately, without running the remaining lines and without flushing.
func (g *GVM) RunGcodeString(src string) error {
	for _, line := range strings.Split(src, "\n") {
		if g.suspended.Load() {
			return nil
		}
		if err := g.runSingleLine(strings.TrimSpace(line)); err != nil {
			return err
		}
	}
	g.queue.Flush()
	return nil
}

// runSingleLine tokenises and dispatches exactly one line, reusing the same
// tokeniser gcodefile uses for file-based parsing.
func (g *GVM) runSingleLine(line string) error {
	if line == "" {
		return nil
	}
	return g.dispatch(gcodefile.ParseCommandLine(line))
}

// dispatch converts an already-tokenised command and invokes its handler.
func (g *GVM) dispatch(gc gcodefile.GcodeCommand) error {
	cmd := fromGcodeCommand(gc)
	if cmd == nil {
		if gc.Cmd == "" {
			return nil
		}
		return fmt.Errorf("gvm: unknown command %s", gc.Cmd)
	}

	handler, ok := g.handlers[cmd.name()]
	if !ok {
		return fmt.Errorf("gvm: unknown command %s", cmd.name())
	}
	return handler(g, cmd)
}

func handleMove(g *GVM, cmd *command) error {
	if cmd.has('F') {
		g.queue.Push(action.NewSetVelocityAction(cmd.get('F', 0) / 60.0))
	}

	if !cmd.has('X') && !cmd.has('Y') && !cmd.has('Z') && !cmd.has('E') {
		return nil
	}

	m := action.Move{}
	if cmd.has('X') {
		v := cmd.get('X', 0)
		m.X = &v
	}
	if cmd.has('Y') {
		v := cmd.get('Y', 0)
		m.Y = &v
	}
	if cmd.has('Z') {
		v := cmd.get('Z', 0)
		m.Z = &v
	}
	if cmd.has('E') {
		v := cmd.get('E', 0)
		m.E = &v
	}

	g.queue.Push(action.NewMoveAction(m))
	return nil
}

func handleHome(g *GVM, cmd *command) error {
	all := !cmd.has('X') && !cmd.has('Y') && !cmd.has('Z')
	x, y, z, e := g.state.Position()
	if all || cmd.has('X') {
		g.state.SetHomed(0, true)
		x = 0
	}
	if all || cmd.has('Y') {
		g.state.SetHomed(1, true)
		y = 0
	}
	if all || cmd.has('Z') {
		g.state.SetHomed(2, true)
		z = 0
	}
	g.state.SetPosition(x, y, z, e)
	return nil
}

func handleAbsolute(g *GVM, cmd *command) error {
	g.state.SetAbsolutePosition(true)
	return nil
}

func handleRelative(g *GVM, cmd *command) error {
	g.state.SetAbsolutePosition(false)
	return nil
}

func handleSetPosition(g *GVM, cmd *command) error {
	x, y, z, e := g.state.Position()
	if cmd.has('X') {
		x = cmd.get('X', 0)
	}
	if cmd.has('Y') {
		y = cmd.get('Y', 0)
	}
	if cmd.has('Z') {
		z = cmd.get('Z', 0)
	}
	if cmd.has('E') {
		e = cmd.get('E', 0)
	}
	g.state.SetPosition(x, y, z, e)
	return nil
}

func handleAbsoluteExtrusion(g *GVM, cmd *command) error {
	g.state.SetAbsoluteExtrusion(true)
	return nil
}

func handleRelativeExtrusion(g *GVM, cmd *command) error {
	g.state.SetAbsoluteExtrusion(false)
	return nil
}

func handleSetExtruderTemp(g *GVM, cmd *command) error {
	if !cmd.has('S') {
		return nil
	}
	g.queue.Push(action.NewSetExtruderTempAction(0, cmd.get('S', 0)))
	return nil
}

func handleSetExtruderTempWait(g *GVM, cmd *command) error {
	if !cmd.has('S') {
		return nil
	}
	g.queue.Push(action.NewSetExtruderTempWaitAction(0, cmd.get('S', 0)))
	return nil
}

func handleSetBedTemp(g *GVM, cmd *command) error {
	if !cmd.has('S') {
		return nil
	}
	g.queue.Push(action.NewSetBedTempAction(cmd.get('S', 0)))
	return nil
}

func handleSetBedTempWait(g *GVM, cmd *command) error {
	if !cmd.has('S') {
		return nil
	}
	g.queue.Push(action.NewSetBedTempWaitAction(cmd.get('S', 0)))
	return nil
}

func handleReportPosition(g *GVM, cmd *command) error {
	x, y, z, e := g.state.Position()
	g.log.WithFields(logrus.Fields{"x": x, "y": y, "z": z, "e": e}).Info(fmt.Sprintf("X:%.3f Y:%.3f Z:%.3f E:%.3f", x, y, z, e))
	return nil
}

func handleReportTemperature(g *GVM, cmd *command) error {
	g.log.Debug("temperature reporting is handled by the physical-driver collaborator")
	return nil
}
