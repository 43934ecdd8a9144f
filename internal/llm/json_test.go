package llm

import (
	"testing"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"a":1}`,
			want:  `{"a":1}`,
		},
		{
			name:  "prose around object",
			input: "Here is my analysis:\n{\"isDuplicate\": true, \"confidence\": 0.95}\nLet me know!",
			want:  `{"isDuplicate": true, "confidence": 0.95}`,
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"matchedTasks\": []}\n```",
			want:  `{"matchedTasks": []}`,
		},
		{
			name:  "nested objects",
			input: `result: {"a":{"b":{"c":1}},"d":2} trailing {"e":3}`,
			want:  `{"a":{"b":{"c":1}},"d":2}`,
		},
		{
			name:  "braces inside strings",
			input: `{"reason":"uses {curly} and \"quoted }\" text","ok":true}`,
			want:  `{"reason":"uses {curly} and \"quoted }\" text","ok":true}`,
		},
		{
			name:  "unbalanced first candidate",
			input: `{ broken {"ok":true}`,
			want:  `{"ok":true}`,
		},
		{
			name:    "no object",
			input:   "I could not find any matches.",
			wantErr: true,
		},
		{
			name:    "never closed",
			input:   `{"a": 1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrMalformedAnswer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSONObject(t *testing.T) {
	var out struct {
		IsDuplicate bool    `json:"isDuplicate"`
		Confidence  float64 `json:"confidence"`
	}

	require.NoError(t, DecodeJSONObject("ok: {\"isDuplicate\":true,\"confidence\":0.8}", &out))
	assert.True(t, out.IsDuplicate)
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)

	err := DecodeJSONObject(`{"isDuplicate":"yes"}`, &out)
	assert.ErrorIs(t, err, common.ErrMalformedAnswer)
}
