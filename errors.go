package epaperify

import (
	"context"
	"errors"
)

// Error kinds. Operations wrap one of these in an *Error so callers can
// classify failures with errors.Is.
var (
	ErrDecode            = errors.New("failed to decode image")
	ErrUnsupportedLayout = errors.New("unsupported pixel layout")
	ErrShapeMismatch     = errors.New("image dimensions or sizes do not match")
	ErrUnknownFormat     = errors.New("unknown image format")
	ErrCorrupt           = errors.New("corrupt delta")
	ErrCompression       = errors.New("compression failed")
	ErrEncode            = errors.New("encoding failed")
)

// Error records the operation and kind of a failure.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := "epaperify: " + e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind error, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func layoutError(op, msg string) error {
	return &Error{Op: op, Kind: ErrUnsupportedLayout, Err: errors.New(msg)}
}

// IsInputError reports whether err was caused by the caller's input rather
// than by a library or resource fault.
func IsInputError(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrUnsupportedLayout) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrUnknownFormat) ||
		errors.Is(err, ErrCorrupt)
}

// IsCanceled reports whether err is the result of a cancelled or expired
// context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
