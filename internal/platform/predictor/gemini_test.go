package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_IncludesInputAndShape(t *testing.T) {
	prompt, err := buildPrompt(Request{Type: KindTriage, Data: map[string]any{"age": 72, "urgency_level": 3}})
	require.NoError(t, err)

	assert.Contains(t, prompt, "triage prediction")
	assert.Contains(t, prompt, `"age": 72`)
	assert.Contains(t, prompt, "urgency_description")
}

func TestBuildPrompt_UnknownKind(t *testing.T) {
	_, err := buildPrompt(Request{Type: "billing"})
	assert.Equal(t, ReasonInvalid, ReasonOf(err))
}

func TestResponseFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"urgency_level": 4}`, `{"urgency_level": 4}`},
		{"fenced", "```json\n{\"urgency_level\": 2}\n```", `{"urgency_level": 2}`},
		{"padded", "  \n{\"a\":1}\n ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := responseFromText(tt.text)
			require.NoError(t, err)
			assert.True(t, resp.Success)
			assert.JSONEq(t, tt.want, string(resp.Data))
		})
	}
}

func TestResponseFromText_Rejects(t *testing.T) {
	for _, text := range []string{"", "The wait time is 30 minutes.", "[1,2,3]", "{broken"} {
		_, err := responseFromText(text)
		assert.Equal(t, ReasonDecode, ReasonOf(err), "text %q", text)
	}
}

func TestNewGeminiPredictor_Validation(t *testing.T) {
	_, err := NewGeminiPredictor(t.Context(), GeminiConfig{APIKey: "k"})
	assert.Error(t, err, "model required")

	_, err = NewGeminiPredictor(t.Context(), GeminiConfig{Model: "gemini-2.0-flash", Backend: "vertex", Project: "medi-os"})
	assert.Error(t, err, "vertex needs location")
}
