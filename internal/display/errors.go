package display

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to react.
type Kind string

const (
	KindUnsupported          Kind = "unsupported"
	KindInvalidRequest       Kind = "invalid_request"
	KindTransient            Kind = "transient"
	KindFailed               Kind = "failed"
	KindVerificationMismatch Kind = "verification_mismatch"
	KindDeviceGone           Kind = "device_gone"
	KindBusy                 Kind = "busy"
)

// Retryable reports whether a caller may retry the same request unchanged.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindBusy
}

// Error is the typed error returned by every display operation.
type Error struct {
	Kind     Kind
	Op       string
	DeviceID string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.DeviceID != "" {
		msg += " (" + e.DeviceID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind so errors.Is(err, ErrUnsupported) works
// regardless of op or device.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.DeviceID == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrUnsupported          = &Error{Kind: KindUnsupported}
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest}
	ErrTransient            = &Error{Kind: KindTransient}
	ErrFailed               = &Error{Kind: KindFailed}
	ErrVerificationMismatch = &Error{Kind: KindVerificationMismatch}
	ErrDeviceGone           = &Error{Kind: KindDeviceGone}
	ErrBusy                 = &Error{Kind: KindBusy}
)

// Errorf builds a typed error with a formatted cause.
func Errorf(kind Kind, op, deviceID, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, DeviceID: deviceID, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches op and device context to err, keeping an existing kind.
func Wrap(err error, op, deviceID string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, DeviceID: deviceID, Err: err}
}

// KindOf classifies an arbitrary error. Untyped errors are Failed, except
// context deadlines which are Transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindFailed
}

// ParseKind maps a wire string back to a Kind.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindUnsupported, KindInvalidRequest, KindTransient, KindFailed,
		KindVerificationMismatch, KindDeviceGone, KindBusy:
		return Kind(s)
	}
	return KindFailed
}
