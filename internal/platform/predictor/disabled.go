package predictor

import "context"

// Disabled never reaches a model. It is used when PREDICTOR_MODE=none so that
// every request is answered by the heuristics.
type Disabled struct{}

func (Disabled) Name() string { return "none" }

func (Disabled) Predict(context.Context, Request) (*Response, error) {
	return nil, &Error{Reason: ReasonUnavailable, Err: ErrDisabled}
}
