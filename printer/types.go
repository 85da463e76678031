package printer

import (
	"gantryd/action"
	"gantryd/gcodefile"
	"gantryd/pkgerr"
)

// StateKind discriminates the Printer lifecycle state.
type StateKind int

const (
	StateStartup StateKind = iota
	StateReady
	StateError
	StateShutdown
)

// State is the Printer's current lifecycle state; ErrorCode/ErrorMessage are
// only meaningful when Kind is StateError.
type State struct {
	Kind         StateKind
	ErrorCode    pkgerr.Code
	ErrorMessage string
}

// PrintJob is one queued file-print request.
type PrintJob struct {
	ID             string
	File           *gcodefile.GcodeFile
	ExcludeObjects []string
}

// Driver is the downstream physical-printer collaborator: it consumes the
// single-receiver PrinterAction stream and answers read-through endstop
// queries, per SPEC_FULL.md section 6's consumed collaborator contracts.
type Driver interface {
	Send(action.PrinterAction)
	EndstopStatus() (x, y, z bool)
}
