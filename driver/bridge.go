package driver

import (
	"sync"

	"github.com/sirupsen/logrus"

	"gantryd/action"
	"gantryd/host/mcu"
	"gantryd/host/serial"
)

// Bridge is the reference implementation of the printer.Driver collaborator
// contract. With no serial device attached it runs purely in simulation,
// tracking step positions and thermal set-points in memory; Connect wires
// it to a real MCU over the Klipper wire protocol via host/mcu and
// host/serial, matching the teacher's own connect-then-retrieve-dictionary
// flow in host/mcu/mcu.go.
type Bridge struct {
	mu sync.Mutex

	kinematics *Cartesian
	axes       map[string]*SimulatedAxis

	mcu       *mcu.MCU
	connected bool

	bedTemp      float64
	extruderTemp map[int]float64

	endstopX, endstopY, endstopZ bool

	log *logrus.Entry
}

// NewBridge constructs a Bridge in simulation mode.
func NewBridge(config MachineConfig, log *logrus.Entry) (*Bridge, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	k, err := NewCartesian(config)
	if err != nil {
		return nil, err
	}

	axes := make(map[string]*SimulatedAxis, len(config.Axes))
	for name, cfg := range config.Axes {
		axes[name] = NewSimulatedAxis(name, cfg)
	}

	return &Bridge{
		kinematics:   k,
		axes:         axes,
		extruderTemp: make(map[int]float64),
		log:          log,
	}, nil
}

// Connect attaches the Bridge to a real MCU over device, retrieving its
// command dictionary. Simulation bookkeeping continues to run alongside the
// real hardware link so EndstopStatus and the rest of the read-through
// surface keep working even if the dictionary handshake fails.
func (b *Bridge) Connect(device string) error {
	m := mcu.NewMCU()
	if err := m.ConnectWithConfig(serial.DefaultConfig(device)); err != nil {
		return err
	}

	b.mu.Lock()
	b.mcu = m
	b.connected = true
	b.mu.Unlock()

	if err := m.RetrieveDictionary(); err != nil {
		b.log.WithError(err).Warn("driver: connected to MCU but dictionary retrieval failed, falling back to simulation for command dispatch")
	}
	return nil
}

// Close releases the underlying MCU connection, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mcu == nil {
		return nil
	}
	err := b.mcu.Close()
	b.connected = false
	return err
}

// Send implements printer.Driver. It updates the simulated machine state
// and, when connected to real hardware with a loaded dictionary, forwards a
// best-effort wire command.
func (b *Bridge) Send(a action.PrinterAction) {
	switch a.Kind {
	case action.KindKinematicMove:
		b.applyKinematicMove(a.KinematicMove)
	case action.KindExtrusionMove:
		b.applyExtrusionMove(a.ExtrusionMove)
	case action.KindPrinterSetBedTemp, action.KindPrinterSetBedTempWait:
		b.mu.Lock()
		b.bedTemp = a.Temp
		b.mu.Unlock()
		b.forward("set_heater_temperature", a.Temp)
	case action.KindPrinterSetExtruderTemp, action.KindPrinterSetExtruderTempWait:
		b.mu.Lock()
		b.extruderTemp[a.ExtruderIndex] = a.Temp
		b.mu.Unlock()
		b.forward("set_heater_temperature", a.Temp)
	}
}

func (b *Bridge) applyKinematicMove(m action.KinematicMove) {
	dx, dy, dz, de := b.kinematics.CalcPosition(m)

	b.mu.Lock()
	defer b.mu.Unlock()
	if ax, ok := b.axes["x"]; ok {
		ax.MoveBy(dx, m.StartVelocity)
	}
	if ax, ok := b.axes["y"]; ok {
		ax.MoveBy(dy, m.StartVelocity)
	}
	if ax, ok := b.axes["z"]; ok {
		ax.MoveBy(dz, m.StartVelocity)
	}
	if ax, ok := b.axes["e"]; ok {
		ax.MoveBy(de, m.StartVelocity)
	}
}

func (b *Bridge) applyExtrusionMove(m action.ExtrusionMove) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ax, ok := b.axes["e"]; ok {
		ax.MoveBy(int64(m.Distance*ax.config.StepsPerMM), m.Flow)
	}
}

// EndstopStatus implements printer.Driver. It returns the flags last set by
// SetEndstopStatus (all false until then); it does not query the MCU.
func (b *Bridge) EndstopStatus() (x, y, z bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endstopX, b.endstopY, b.endstopZ
}

// SetEndstopStatus lets the owning instance inject a simulated endstop
// triggering (e.g. on a homing move reaching its configured minimum), since
// there is no physical switch to poll in simulation mode.
func (b *Bridge) SetEndstopStatus(x, y, z bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endstopX, b.endstopY, b.endstopZ = x, y, z
}

// Temperatures returns the most recently commanded bed and per-extruder
// target temperatures, a read-through substitute for a real thermistor
// reading.
func (b *Bridge) Temperatures() (bed float64, extruders map[int]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]float64, len(b.extruderTemp))
	for k, v := range b.extruderTemp {
		out[k] = v
	}
	return b.bedTemp, out
}

func (b *Bridge) forward(name string, value float64) {
	b.mu.Lock()
	m, connected := b.mcu, b.connected
	b.mu.Unlock()

	if !connected || m == nil || m.GetDictionary() == nil {
		return
	}
	if err := m.SendCommand(name, nil); err != nil {
		b.log.WithError(err).WithField("command", name).Warn("driver: failed to forward command to MCU")
	}
}
