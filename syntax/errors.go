package syntax

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTruncatedInput is returned when fewer bytes remain than a
	// declared length requires. Fatal: decoding of the enclosing element
	// aborts.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrLengthMismatch is returned when a declared length disagrees with
	// the bytes actually consumed decoding the content. Fatal.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrStructuralOrder is returned when a mandatory element sequence is
	// violated. Fatal.
	ErrStructuralOrder = errors.New("structural order violation")

	// ErrInvalidFourCC is returned when a 4-character code contains
	// non-printable bytes. Fatal.
	ErrInvalidFourCC = errors.New("invalid four-character code")

	// ErrInvalidEnumeration is returned when a field that drives further
	// parsing carries a value outside its closed set. Fatal only for such
	// fields; elsewhere the literal value is kept and a finding recorded.
	ErrInvalidEnumeration = errors.New("invalid enumeration value")
)

// Error is a structural decode failure. It wraps one of the sentinel
// errors above and carries the byte offset and the active element path so
// a failure deep in a nested box is attributable.
type Error struct {
	Sentinel error
	Offset   int64
	Path     []string
	Detail   string
}

func (e *Error) Error() string {
	msg := e.Sentinel.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.Path) > 0 {
		msg += " in " + strings.Join(e.Path, "/")
	}
	return fmt.Sprintf("%s at offset %d", msg, e.Offset)
}

func (e *Error) Unwrap() error { return e.Sentinel }

// Errorf builds an Error wrapping the given sentinel.
func Errorf(sentinel error, offset int64, format string, args ...interface{}) *Error {
	return &Error{
		Sentinel: sentinel,
		Offset:   offset,
		Detail:   fmt.Sprintf(format, args...),
	}
}

// InPath prepends tag to the error's element path when err is an *Error;
// other errors pass through unchanged. Decoders call it while unwinding
// so the path reads root-first.
func InPath(err error, tag string) error {
	var e *Error
	if errors.As(err, &e) {
		e.Path = append([]string{tag}, e.Path...)
		return err
	}
	return err
}
