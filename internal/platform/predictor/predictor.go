// Package predictor is the client side of the external ML model that backs the
// Manage agent. A Predictor receives a typed request naming one of three
// prediction kinds and answers with the model's envelope:
//
//	request:  {"type": "wait_time" | "triage" | "optimization", "data": {...}}
//	response: {"success": bool, "data": {...}, "error": "..."}
//
// The transport is an implementation detail. Subprocess, HTTP and GenAI
// backends are provided, plus Disabled for heuristics-only deployments.
package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a prediction type understood by the model.
type Kind string

const (
	KindWaitTime     Kind = "wait_time"
	KindTriage       Kind = "triage"
	KindOptimization Kind = "optimization"
)

// Request is the envelope sent to the model.
type Request struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

// Response is the envelope returned by the model.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Predictor invokes the external model once per call. Transport failures are
// returned as errors; a well-formed reply with success=false is returned as a
// Response so callers can tell the two apart.
type Predictor interface {
	Predict(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Invoke calls p and reduces every failure mode to a *Error: transport
// errors, explicit success=false replies and successful replies that carry no
// payload. On success the raw payload is returned untouched.
func Invoke(ctx context.Context, p Predictor, req Request) (json.RawMessage, error) {
	resp, err := p.Predict(ctx, req)
	if err != nil {
		return nil, asError(ctx, err)
	}
	if resp == nil {
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("empty response")}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "model reported failure"
		}
		return nil, &Error{Reason: ReasonRejected, Err: errors.New(msg)}
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("success without data")}
	}
	return resp.Data, nil
}
