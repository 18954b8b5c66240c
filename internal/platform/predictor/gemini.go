package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig selects the GenAI backend. Backend "vertex" authenticates with
// application default credentials against Project/Location; anything else
// uses the Gemini API with APIKey.
type GeminiConfig struct {
	APIKey   string
	Model    string
	Backend  string
	Project  string
	Location string
}

// GeminiPredictor asks a Gemini model to produce the prediction payload as
// JSON. The model is prompted with the request and the exact field layout of
// the expected result.
type GeminiPredictor struct {
	client *genai.Client
	model  string
}

// NewGeminiPredictor creates a GenAI-backed predictor.
func NewGeminiPredictor(ctx context.Context, cfg GeminiConfig) (*GeminiPredictor, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini predictor requires a model")
	}

	cc := &genai.ClientConfig{}
	switch cfg.Backend {
	case "vertex":
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("vertex backend requires project and location")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	default:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiPredictor{client: client, model: cfg.Model}, nil
}

func (p *GeminiPredictor) Name() string { return "gemini:" + p.model }

func (p *GeminiPredictor) Predict(ctx context.Context, req Request) (*Response, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, asError(ctx, fmt.Errorf("genai generate: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("genai returned no candidates")}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return responseFromText(sb.String())
}

var payloadShapes = map[Kind]string{
	KindWaitTime: `{"predicted_wait_time": <int minutes 5-180>, "confidence": <float 0-1>, ` +
		`"queue_position": <int>, "estimated_wait_time": "<N> minutes"}`,
	KindTriage: `{"urgency_level": <int 1-5>, "urgency_description": "<Non-urgent|Low urgency|Medium urgency|High urgency|Emergency>", ` +
		`"recommended_department": "<department>", "estimated_wait_time": "<N> minutes", "confidence": <float 0-1>}`,
	KindOptimization: `{"optimal_staff_allocation": <int >= 1>, "optimal_room_allocation": <int >= 1>, ` +
		`"current_efficiency": <float>, "recommendations": ["<advice>", ...]}`,
}

func buildPrompt(req Request) (string, error) {
	shape, ok := payloadShapes[req.Type]
	if !ok {
		return "", &Error{Reason: ReasonInvalid, Err: fmt.Errorf("unknown prediction kind %q", req.Type)}
	}
	input, err := json.MarshalIndent(req.Data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode request data: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are the operations model of a hospital outpatient clinic.\n")
	fmt.Fprintf(&b, "Task: %s prediction.\n", req.Type)
	b.WriteString("Input:\n")
	b.Write(input)
	b.WriteString("\nRespond with a single JSON object and nothing else, shaped exactly as:\n")
	b.WriteString(shape)
	b.WriteString("\n")
	return b.String(), nil
}

// responseFromText turns the model's text into a successful envelope. Code
// fences are tolerated; anything that is not a JSON object is a decode error.
func responseFromText(text string) (*Response, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	raw := bytes.TrimSpace([]byte(text))

	if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("model output is not a JSON object: %s", tail(text, maxStderr))}
	}
	return &Response{Success: true, Data: json.RawMessage(raw)}, nil
}
