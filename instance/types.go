package instance

import (
	"gantryd/pkgerr"
	"gantryd/printer"
)

// Info is the externally observable status snapshot, the supplemented
// equivalent of the original source's PrinterInfo mapping of Printer State
// onto an error code/message pair.
type Info struct {
	State        string
	ErrorCode    pkgerr.Code
	ErrorMessage string
	GcodeRunning bool
	GcodeLine    uint64
	X, Y, Z, E   float64
	HomedX       bool
	HomedY       bool
	HomedZ       bool
}

func stateName(k printer.StateKind) string {
	switch k {
	case printer.StateStartup:
		return "startup"
	case printer.StateReady:
		return "ready"
	case printer.StateError:
		return "error"
	case printer.StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// PrintJobStatus reports the state of the print job subsystem.
type PrintJobStatus struct {
	Running     bool
	RunningFile string
	Queued      []string
}

// FileMetadata is the supplemented ScanFileMetadata/GetFileMetadata result,
// the parsed Meta block plus the slicer info header from gcodefile.GcodeFile.
type FileMetadata struct {
	Name       string
	SlicerInfo SlicerInfoView
	Meta       MetaView
}

// SlicerInfoView mirrors gcodefile.SlicerInfo for external consumption.
type SlicerInfoView struct {
	Slicer, Version, Date, Time string
}

// MetaView mirrors the subset of gcodefile.Meta useful at the facade
// boundary without forcing callers to import gcodefile directly.
type MetaView struct {
	EstimatedPrintTimeSeconds *uint64
	TotalLayersCount          *uint32
	TotalFilamentLengthUsed   *float64
}

// Extension is one entry in the minimal directory-backed extensions
// registry, per SPEC_FULL.md section 4.7.
type Extension struct {
	Name   string
	Config string
}
