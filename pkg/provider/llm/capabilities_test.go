package llm

import "testing"

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		model string
		want  ModelCapabilities
	}{
		{"gpt-4o-mini", ModelCapabilities{128_000, 16_384}},
		{"GPT-4o", ModelCapabilities{128_000, 16_384}},
		{"gpt-4-turbo-preview", ModelCapabilities{128_000, 4_096}},
		{"gpt-4", ModelCapabilities{8_192, 4_096}},
		{"gpt-3.5-turbo", ModelCapabilities{16_385, 4_096}},
		{"o1-mini", ModelCapabilities{128_000, 65_536}},
		{"o3-mini", ModelCapabilities{200_000, 100_000}},
		{"claude-3-5-sonnet-latest", ModelCapabilities{200_000, 8_192}},
		{"gemini-2.0-flash", ModelCapabilities{1_048_576, 8_192}},
		{"mistral-large-latest", ModelCapabilities{128_000, 8_192}},
		{"mistral-small-latest", ModelCapabilities{32_000, 4_096}},
		{"llama3", ModelCapabilities{8_192, 2_048}},
		{"my-local-model", DefaultCapabilities},
		{"", DefaultCapabilities},
	}
	for _, tt := range tests {
		if got := CapabilitiesFor(tt.model); got != tt.want {
			t.Errorf("CapabilitiesFor(%q) = %+v, want %+v", tt.model, got, tt.want)
		}
	}
}
