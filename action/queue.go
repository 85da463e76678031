// Package action implements the trapezoid generator: the ActionQueue that
// turns abstract Move intents into concrete KinematicMove/ExtrusionMove
// instructions, with one-move look-ahead for junction velocity.
package action

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// Queue is the ActionQueueInner plus its mutex and emission channel, grounded
// on original_source/gantry/src/printer/action.rs's push/flush contract and
// on standalone/planner/planner.go's trapezoid-shaping style.
type Queue struct {
	mu sync.Mutex

	firstMove      *concreteMove
	firstMoveAccel float64
	deferred       []PrinterAction

	suspended bool

	state *State
	out   chan<- PrinterEvent
	log   *logrus.Entry
}

func NewQueue(state *State, out chan<- PrinterEvent, log *logrus.Entry) *Queue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Queue{state: state, out: out, log: log}
}

// Suspend makes subsequent Push calls no-ops and Flush a no-op until Resume.
func (q *Queue) Suspend() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.suspended = true
}

func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.suspended = false
}

// Clear drops first_move and the deferred FIFO without emitting anything.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.firstMove = nil
	q.deferred = nil
}

// Push accepts one Action per the variant semantics in SPEC_FULL.md section 4.5.
func (q *Queue) Push(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.suspended {
		return
	}

	switch a.Kind {
	case KindMove:
		q.pushMove(a.Move)
	case KindSetVelocity:
		q.state.SetMaxVelocity(a.Velocity)
	case KindSetBedTemp:
		q.pushDeferrable(PrinterAction{Kind: KindPrinterSetBedTemp, Temp: a.Temp})
	case KindSetExtruderTemp:
		q.pushDeferrable(PrinterAction{Kind: KindPrinterSetExtruderTemp, Temp: a.Temp, ExtruderIndex: a.ExtruderIndex})
	case KindSetBedTempWait:
		q.flushLocked()
		q.emit(PrinterAction{Kind: KindPrinterSetBedTempWait, Temp: a.Temp})
	case KindSetExtruderTempWait:
		q.flushLocked()
		q.emit(PrinterAction{Kind: KindPrinterSetExtruderTempWait, Temp: a.Temp, ExtruderIndex: a.ExtruderIndex})
	}
}

func (q *Queue) pushDeferrable(pa PrinterAction) {
	if q.firstMove != nil {
		q.deferred = append(q.deferred, pa)
		return
	}
	q.emit(pa)
}

func (q *Queue) pushMove(m Move) {
	target := q.state.MaxVelocity()
	if m.TargetVelocity != nil {
		target = *m.TargetVelocity
	}
	target = clamp(target, 0.1, q.state.MaxVelocity())

	cm := concreteMove{}
	if m.StartVelocity != nil {
		cm.StartVelocity = *m.StartVelocity
	}
	cm.TargetVelocity = target

	x, y, z, e := 0.0, 0.0, 0.0, 0.0

	if m.X != nil {
		x = *m.X
		if q.state.AbsolutePosition() {
			cx, _, _, _ := q.state.Position()
			x -= cx
		}
	}
	if m.Y != nil {
		y = *m.Y
		if q.state.AbsolutePosition() {
			_, cy, _, _ := q.state.Position()
			y -= cy
		}
	}
	if m.Z != nil {
		z = *m.Z
		if q.state.AbsolutePosition() {
			_, _, cz, _ := q.state.Position()
			z -= cz
		}
	}
	if m.E != nil {
		e = *m.E
		if q.state.AbsoluteExtrusion() {
			_, _, _, ce := q.state.Position()
			e -= ce
		}
	}

	cm.X, cm.Y, cm.Z, cm.E = x, y, z, e

	q.state.addPosition(x, y, z, e)

	if q.firstMove == nil {
		q.firstMove = &cm
		q.firstMoveAccel = q.state.MaxAccel()
		return
	}

	// One-move look-ahead: finalise the held move using this one as the
	// junction hint, then this move slides into the look-ahead slot.
	held := *q.firstMove
	heldAccel := q.firstMoveAccel
	q.emit(q.encodeAndSend(held, heldAccel, &cm))

	for _, pa := range q.deferred {
		q.emit(pa)
	}
	q.deferred = nil

	q.firstMove = &cm
	q.firstMoveAccel = q.state.MaxAccel()
}

// Flush drains the held move (if any) and the deferred FIFO.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.suspended {
		return
	}
	q.flushLocked()
}

func (q *Queue) flushLocked() {
	if q.firstMove != nil {
		held := *q.firstMove
		heldAccel := q.firstMoveAccel
		q.firstMove = nil
		q.emit(q.encodeAndSend(held, heldAccel, nil))
	}
	for _, pa := range q.deferred {
		q.emit(pa)
	}
	q.deferred = nil
}

func (q *Queue) emit(pa PrinterAction) {
	select {
	case q.out <- PrinterEvent{Kind: EventAction, Action: pa}:
	default:
		q.log.Warn("action event channel full, dropping action")
	}
}

// encodeAndSend implements the trapezoid shaping described in SPEC_FULL.md
// section 4.5. next is the look-ahead hint, nil when there is none.
func (q *Queue) encodeAndSend(m concreteMove, accel float64, next *concreteMove) PrinterAction {
	if m.isPureExtrusion() {
		return PrinterAction{
			Kind:          KindExtrusionMove,
			ExtrusionMove: ExtrusionMove{Flow: m.TargetVelocity, Distance: m.E},
		}
	}

	d := m.distance()
	exitDesired := q.junctionVelocity(m, next)

	var exitFeasible float64
	if d > 0 {
		reach := m.StartVelocity*m.StartVelocity + 2*accel*d
		if reach < 0 {
			reach = 0
		}
		exitFeasible = math.Sqrt(reach)
	} else {
		exitFeasible = m.StartVelocity
	}

	exit := math.Min(exitDesired, exitFeasible)
	exit = math.Min(exit, m.TargetVelocity)
	if exit < 0 {
		exit = 0
	}

	var usedAccel float64
	if d > 0 {
		usedAccel = (exit*exit - m.StartVelocity*m.StartVelocity) / (2 * d)
	}

	return PrinterAction{
		Kind: KindKinematicMove,
		KinematicMove: KinematicMove{
			StartVelocity: m.StartVelocity,
			Acceleration:  usedAccel,
			X:             m.X,
			Y:             m.Y,
			Z:             m.Z,
			E:             m.E,
		},
	}
}

// junctionVelocity computes the desired exit velocity through the boundary
// between m and next, scaling monotonically with the cosine of the turn
// angle: collinear (cos=1) allows the full target velocity, a 90-degree
// corner (cos=0) allows only square_corner_velocity.
func (q *Queue) junctionVelocity(m concreteMove, next *concreteMove) float64 {
	if next == nil {
		return 0
	}

	scv := q.state.SquareCornerVelocity()

	mag1 := math.Sqrt(m.X*m.X + m.Y*m.Y + m.Z*m.Z)
	mag2 := math.Sqrt(next.X*next.X + next.Y*next.Y + next.Z*next.Z)
	if mag1 == 0 || mag2 == 0 {
		return scv
	}

	cosTheta := (m.X*next.X + m.Y*next.Y + m.Z*next.Z) / (mag1 * mag2)
	cosTheta = clamp(cosTheta, 0, 1)

	desired := scv + cosTheta*(m.TargetVelocity-scv)

	if floor := q.state.MinimumCruiseRatio() * m.TargetVelocity; floor > desired {
		desired = floor
	}

	return desired
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
