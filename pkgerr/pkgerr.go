// Package pkgerr defines the error taxonomy observable at the Instance boundary.
package pkgerr

import "fmt"

// Code identifies a class of error in the printer error taxonomy.
type Code int

const (
	None Code = iota
	GenericError
	ErrorState
	ShutdownState
	StartupState
	AuthFailed
	AuthRequired
	AuthTokenInvalid
	AuthTokenTimeout
	RefreshTokenInvalid
	PrinterConfigParseError
	GcodeParseError
	PrintJobRunning
	PrintJobNotRunning
	FileNotFound
	FileReadError
	FileCapacityFull
)

func (c Code) String() string {
	switch c {
	case None:
		return "None"
	case GenericError:
		return "GenericError"
	case ErrorState:
		return "ErrorState"
	case ShutdownState:
		return "ShutdownState"
	case StartupState:
		return "StartupState"
	case AuthFailed:
		return "AuthFailed"
	case AuthRequired:
		return "AuthRequired"
	case AuthTokenInvalid:
		return "AuthTokenInvalid"
	case AuthTokenTimeout:
		return "AuthTokenTimeout"
	case RefreshTokenInvalid:
		return "RefreshTokenInvalid"
	case PrinterConfigParseError:
		return "PrinterConfigParseError"
	case GcodeParseError:
		return "GcodeParseError"
	case PrintJobRunning:
		return "PrintJobRunning"
	case PrintJobNotRunning:
		return "PrintJobNotRunning"
	case FileNotFound:
		return "FileNotFound"
	case FileReadError:
		return "FileReadError"
	case FileCapacityFull:
		return "FileCapacityFull"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy error returned at the Instance boundary. Payload carries
// an optional, caller-specific value (e.g. a parsed object on partial success).
type Error struct {
	Code    Code
	Message string
	Payload any
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error()}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) WithPayload(p any) *Error {
	e.Payload = p
	return e
}
