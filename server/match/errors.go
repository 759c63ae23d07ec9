package match

import (
	"errors"
	"fmt"
)

// Seat indexes the two fixed participants of a match.
type Seat int

const (
	NoSeat     Seat = -1
	Defender   Seat = 0
	Challenger Seat = 1
)

func (s Seat) String() string {
	switch s {
	case Defender:
		return "defender"
	case Challenger:
		return "challenger"
	}
	return "system"
}

func (s Seat) Other() Seat { return 1 - s }

// ErrorKind values double as the persisted error_type strings.
type ErrorKind string

const (
	Internal       ErrorKind = "INTERNAL"
	InvalidAction  ErrorKind = "INVALID_ACTION"
	ResourceLimit  ErrorKind = "MEMORY"
	RuntimeFailure ErrorKind = "RUNTIME"
	Timeout        ErrorKind = "TIMEOUT"
)

// Error ends a match. Every kind except Internal names the faulting seat.
type Error struct {
	Kind   ErrorKind `msgpack:"kind"`
	Seat   Seat      `msgpack:"seat"`
	Detail string    `msgpack:"detail,omitempty"`

	err error
}

func (e *Error) Error() string {
	if e.Kind == Internal {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s by %s: %s", e.Kind, e.Seat, e.Detail)
}

func (e *Error) Unwrap() error { return e.err }

// Attributable reports whether the error is charged to one seat.
func (e *Error) Attributable() bool { return e.Kind != Internal }

func InternalError(err error) *Error {
	return &Error{Kind: Internal, Seat: NoSeat, Detail: errDetail(err), err: err}
}

func SeatError(kind ErrorKind, seat Seat, err error) *Error {
	return &Error{Kind: kind, Seat: seat, Detail: errDetail(err), err: err}
}

// AsError returns err's *Error, classifying anything else as Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return InternalError(err)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
