package protocol

import (
	"errors"
	"strconv"
)

// Status is a stable numeric code carried by every response. Codes are grouped
// by category in decades: client 1-9, server 10-19, transient 20-29, protocol 30-39.
// A non-OK Status is also an error.
type Status uint16

const (
	StatusOK Status = 0

	StatusInvalidInput Status = 1
	StatusNotFound     Status = 2
	StatusKeyTooLong   Status = 3
	StatusValueTooLong Status = 4

	StatusOutOfMemory      Status = 10
	StatusCapacityExceeded Status = 11
	StatusInternalError    Status = 12

	StatusBusy        Status = 20
	StatusTimeout     Status = 21
	StatusInterrupted Status = 22

	StatusVersionMismatch    Status = 30
	StatusProtocolViolation  Status = 31
	StatusUnsupportedCommand Status = 32
)

type Category uint8

const (
	CategoryNone Category = iota
	CategoryClient
	CategoryServer
	CategoryTransient
	CategoryProtocol
)

func (c Category) String() string {
	switch c {
	case CategoryClient:
		return "client"
	case CategoryServer:
		return "server"
	case CategoryTransient:
		return "transient"
	case CategoryProtocol:
		return "protocol"
	default:
		return "none"
	}
}

var statusNames = map[Status]string{
	StatusOK:                 "ok",
	StatusInvalidInput:       "invalid input",
	StatusNotFound:           "not found",
	StatusKeyTooLong:         "key too long",
	StatusValueTooLong:       "value too long",
	StatusOutOfMemory:        "out of memory",
	StatusCapacityExceeded:   "capacity exceeded",
	StatusInternalError:      "internal error",
	StatusBusy:               "busy",
	StatusTimeout:            "timeout",
	StatusInterrupted:        "interrupted",
	StatusVersionMismatch:    "version mismatch",
	StatusProtocolViolation:  "protocol violation",
	StatusUnsupportedCommand: "unsupported command",
}

// Known reports whether s is one of the defined codes.
func (s Status) Known() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status " + strconv.Itoa(int(s))
}

func (s Status) Error() string { return s.String() }

func (s Status) Category() Category {
	switch {
	case s == StatusOK || !s.Known():
		return CategoryNone
	case s < 10:
		return CategoryClient
	case s < 20:
		return CategoryServer
	case s < 30:
		return CategoryTransient
	default:
		return CategoryProtocol
	}
}

// Retryable is true for transient statuses only.
func (s Status) Retryable() bool {
	return s.Category() == CategoryTransient
}

// StatusOf maps an error to the status to put on the wire.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	if errors.Is(err, ErrMalformed) {
		return StatusProtocolViolation
	}
	return StatusInternalError
}
