package kml

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidGeometry marks a polygon whose coordinates yield no usable ring.
	// Callers skip the polygon; it never fails a whole document.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrUpstreamFetch matches every *FetchError.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrTableMissing is wrapped in a *FetchError when a backing table is absent.
	ErrTableMissing = errors.New("table does not exist")

	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrUnavailable marks a data source that is refusing calls for now,
	// such as an open circuit breaker.
	ErrUnavailable = errors.New("data source unavailable")
)

// FetchError is returned when the data collaborator fails to deliver
// areas, pickups or polygons for a document build.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrUpstreamFetch }

// Retryable reports whether the failure was a timeout rather than a hard error.
func (e *FetchError) Retryable() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, ErrUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// NewFetchError wraps err for op unless it is already an upstream fetch error.
func NewFetchError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamFetch) {
		return err
	}
	return &FetchError{Op: op, Err: err}
}

// IsRetryable reports whether err is an upstream fetch timeout.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}
