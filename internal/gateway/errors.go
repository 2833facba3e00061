package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a gateway failure so callers can decide how to react.
type Kind int

const (
	// KindTransport covers network failures, timeouts and unreadable responses.
	// The outcome of the remote operation is unknown.
	KindTransport Kind = iota + 1
	// KindHTTP is any non-2xx response that is not a validation rejection.
	KindHTTP
	// KindValidation means the processor (or the client, before sending)
	// rejected the input. Retrying the same request will not help.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTP:
		return "http"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is returned by every Client operation that fails.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Type       string
	Message    string
	Fields     map[string][]string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gateway %s: %s error", e.Op, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Type != "" {
		fmt.Fprintf(&b, " %s", e.Type)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil && e.Message == "" {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a gateway validation rejection.
func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

// IsTransport reports whether err is a gateway transport failure.
func IsTransport(err error) bool {
	return kindOf(err) == KindTransport
}

func kindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return 0
}
