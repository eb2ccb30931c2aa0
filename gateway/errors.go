package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrArtifactNotFound is returned when the gateway no longer has the
	// requested output file (HTTP 404).
	ErrArtifactNotFound = errors.New("output file not found")

	// ErrArtifactExpired is returned when the output file's retention window
	// has elapsed (HTTP 410).
	ErrArtifactExpired = errors.New("output file expired")

	// ErrMalformedPayload is returned when a gateway response does not match
	// any known payload shape. Such payloads are quarantined at the boundary
	// rather than propagated inward.
	ErrMalformedPayload = errors.New("malformed gateway payload")
)

// StatusError is an application-level rejection from the gateway. The
// message is the gateway's own and is surfaced to the user verbatim.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("gateway error (status %d)", e.Code)
}

// TimeoutError is a network call that exceeded its budget. It is reported
// distinctly from rejections so callers can tell the user processing may
// still be running in the background.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out; processing may still be running in the background", e.Op)
}

// artifactError translates gateway 404/410 rejections for an output file
// into the distinguishable artifact conditions.
func artifactError(outputRef string, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, outputRef)
		case http.StatusGone:
			return fmt.Errorf("%w: %s", ErrArtifactExpired, outputRef)
		}
	}
	return err
}

// asTimeout converts a transport error into a *TimeoutError when it is one,
// else returns nil.
func asTimeout(op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{Op: op}
	}
	return nil
}
