package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a model reply is read.
const maxResponseBytes = 1 << 20

// HTTPPredictor posts the request envelope to a model-serving endpoint, such
// as the FastAPI wrapper around the Python agent or a managed prediction
// endpoint fronted by a bearer token.
type HTTPPredictor struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPPredictor creates an HTTP predictor. A nil client gets a default one
// with a 10 second timeout; the request context still bounds every call.
func NewHTTPPredictor(url, token string, client *http.Client) (*HTTPPredictor, error) {
	if url == "" {
		return nil, fmt.Errorf("http predictor requires a url")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPPredictor{url: url, token: token, client: client}, nil
}

func (p *HTTPPredictor) Name() string { return "http" }

func (p *HTTPPredictor) Predict(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, asError(ctx, fmt.Errorf("POST %s: %w", p.url, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, asError(ctx, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Reason: ReasonStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, tail(strings.TrimSpace(string(body)), maxStderr)),
		}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}
