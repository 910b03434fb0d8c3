package iluminize

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrInvalidAddress is returned when a sender string is not 6 hex digits.
	ErrInvalidAddress = errors.New("iluminize: invalid sender address")

	// ErrInvalidLimit is returned when a channel maximum is not 2 or 6 hex digits.
	ErrInvalidLimit = errors.New("iluminize: invalid channel limit")

	// ErrFrameLength is returned when a frame is not FrameLen bytes long.
	ErrFrameLength = errors.New("iluminize: invalid frame length")

	// ErrFrameMarker is returned when start or end markers are missing.
	ErrFrameMarker = errors.New("iluminize: invalid frame marker")

	// ErrChecksum is returned when a frame checksum does not match its body.
	ErrChecksum = errors.New("iluminize: checksum mismatch")
)

// FailureKind classifies a transport failure.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureUnreachable
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnreachable:
		return "unreachable"
	case FailureTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// TransportError reports a failed send to an appliance.
type TransportError struct {
	Kind FailureKind
	Op   string // "dial" or "write"
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("iluminize: %s %s: %s: %v", e.Op, e.Addr, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classify maps a dial or write error onto a FailureKind.
func classify(err error) FailureKind {
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return FailureUnreachable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	return FailureOther
}
