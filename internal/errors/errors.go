package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/julianstephens/chime/internal/logger"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindIO          Kind = "io"
	KindParse       Kind = "parse"
	KindOutOfMemory Kind = "out_of_memory"
	KindInvalid     Kind = "invalid"
	KindInternal    Kind = "internal"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrIO          = &Error{Kind: KindIO}
	ErrParse       = &Error{Kind: KindParse}
	ErrOutOfMemory = &Error{Kind: KindOutOfMemory}
	ErrInvalid     = &Error{Kind: KindInvalid}
)

// Error is an application error.
type Error struct {
	// Kind is the error category.
	Kind Kind

	// Op is the operation that failed, e.g. "alarm.Update".
	Op string

	// Description is a human-readable description of the error.
	Description string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match for any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E wraps err as an error of the given kind.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an error of the given kind with a formatted description.
func Errorf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Description: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal if err isn't an application error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// Describe returns a human-readable description of the error, or
// "internal error" if err isn't an application error.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Description != "" {
			return e.Description
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return "internal error"
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err, "kind", KindOf(err))
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
