// Package errs classifies the failures of a remote play session.
package errs

import (
	"errors"
	"fmt"
)

// Kind tells callers how a failure affects the session.
type Kind uint8

const (
	// KindUnknown is any error not produced by this module.
	KindUnknown Kind = iota
	// Construction errors come from malformed connect info. The session never starts.
	Construction
	// Crypto errors come from the handshake math or signature checks. Fatal.
	Crypto
	// Protocol errors come from malformed inbound data. The data is dropped.
	Protocol
	// Device errors mean an audio or video device rejected the format. That subsystem is disabled.
	Device
	// BufferTooSmall means a serialization target lacked capacity. Retry with a larger buffer.
	BufferTooSmall
)

func (k Kind) String() string {
	switch k {
	case Construction:
		return "construction"
	case Crypto:
		return "crypto"
	case Protocol:
		return "protocol"
	case Device:
		return "device"
	case BufferTooSmall:
		return "buffer too small"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind end the session.
func (k Kind) Fatal() bool {
	return k == Construction || k == Crypto
}

// Error is a classified error with the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
