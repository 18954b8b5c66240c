package predictor

import (
	"context"
	"fmt"
	"strings"
)

// Modes accepted by New.
const (
	ModeNone   = "none"
	ModeExec   = "exec"
	ModeHTTP   = "http"
	ModeGemini = "gemini"
)

// Config describes which predictor to build.
type Config struct {
	Mode    string
	Command string
	Workdir string
	URL     string
	Token   string
	GenAI   GeminiConfig
}

// New builds the predictor selected by cfg.Mode. An empty mode means none.
func New(ctx context.Context, cfg Config) (Predictor, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", ModeNone:
		return Disabled{}, nil
	case ModeExec:
		return NewExecPredictor(strings.Fields(cfg.Command), cfg.Workdir)
	case ModeHTTP:
		return NewHTTPPredictor(cfg.URL, cfg.Token, nil)
	case ModeGemini:
		return NewGeminiPredictor(ctx, cfg.GenAI)
	default:
		return nil, fmt.Errorf("unknown predictor mode %q", cfg.Mode)
	}
}
