package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenURLFor(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{
			name:     "versioned path is replaced",
			endpoint: "https://llm.internal.example.com/v1/summarize",
			want:     "https://llm.internal.example.com/oauth/token",
		},
		{
			name:     "bare host appends oauth path",
			endpoint: "https://llm.internal.example.com",
			want:     "https://llm.internal.example.com/oauth/token",
		},
		{
			name:     "trailing slash is trimmed before appending",
			endpoint: "https://llm.internal.example.com/",
			want:     "https://llm.internal.example.com/oauth/token",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tokenURLFor(tc.endpoint))
		})
	}
}
