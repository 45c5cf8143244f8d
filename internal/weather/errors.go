package weather

import "fmt"

// ErrorKind is the machine-readable class of a caller-facing error.
type ErrorKind string

const (
	KindUnauthenticated     ErrorKind = "unauthenticated"
	KindForbidden           ErrorKind = "forbidden"
	KindRateLimited         ErrorKind = "rate_limited"
	KindValidation          ErrorKind = "validation_error"
	KindLocationNotFound    ErrorKind = "location_not_found"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// Error is returned by Service for every rejected request.
type Error struct {
	Kind       ErrorKind
	Message    string
	Hint       string
	RetryAfter int      // seconds, rate_limited only
	Cities     []string // supported names, location errors only
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
