package predictor

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Reason classifies why a prediction attempt failed.
type Reason string

const (
	ReasonUnavailable Reason = "unavailable"
	ReasonTimeout     Reason = "timeout"
	ReasonExit        Reason = "exit"
	ReasonStatus      Reason = "status"
	ReasonDecode      Reason = "decode"
	ReasonRejected    Reason = "rejected"
	ReasonInvalid     Reason = "invalid"
)

// ErrDisabled is wrapped by the Disabled predictor.
var ErrDisabled = errors.New("predictor disabled")

// Error wraps a predictor failure with its classification. Status carries the
// process exit code for ReasonExit and the HTTP status for ReasonStatus.
type Error struct {
	Reason Reason
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "predictor error"
	}
	if e.Err != nil {
		return fmt.Sprintf("predictor %s: %v", e.Reason, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("predictor %s (status=%d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("predictor %s", e.Reason)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReasonOf reports the failure class of err. Errors that are not *Error are
// classified as timeouts when they stem from a deadline, unavailable otherwise.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	if isTimeout(err) {
		return ReasonTimeout
	}
	return ReasonUnavailable
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// asError normalises a transport error, preferring the context's verdict when
// the call was cut short by its deadline.
func asError(ctx context.Context, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if ctx.Err() != nil || isTimeout(err) {
		return &Error{Reason: ReasonTimeout, Err: err}
	}
	return &Error{Reason: ReasonUnavailable, Err: err}
}
