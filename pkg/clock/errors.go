package clock

import "errors"

var (
	// ErrRateLimited indicates an incoming time was too far ahead of this
	// node's wall clock.
	ErrRateLimited = errors.New("cluster time fails rate limiter")

	// ErrBeyondMax indicates an incoming time exceeded the maximum
	// representable value for its component.
	ErrBeyondMax = errors.New("time cannot be advanced beyond its maximum value")

	// ErrBadValue indicates a malformed wire value.
	ErrBadValue = errors.New("bad value")

	// ErrCannotVerify indicates a time from an unprivileged caller could not
	// be verified because no signing service is configured.
	ErrCannotVerify = errors.New("cannot verify and sign logical time")
)
