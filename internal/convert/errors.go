package convert

import (
	"errors"
	"fmt"
)

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a response with a non-2xx status. The body is not consumed.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// DecodeError is a 2xx response whose body is not the expected JSON shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unexpected backend response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind names the failure class for logging. The user-facing banner does not
// distinguish them.
func Kind(err error) string {
	var (
		te *TransportError
		se *StatusError
		de *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return "status"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &te):
		return "transport"
	}
	return "unknown"
}
