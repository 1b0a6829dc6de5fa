package llm

import "strings"

// DefaultCapabilities is assumed for models not in the lookup table.
var DefaultCapabilities = ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}

// capabilityTable is matched by case-insensitive prefix, first match wins,
// so longer prefixes precede shorter ones.
var capabilityTable = []struct {
	prefixes []string
	caps     ModelCapabilities
}{
	{[]string{"gpt-4o"}, ModelCapabilities{128_000, 16_384}},
	{[]string{"gpt-4-turbo"}, ModelCapabilities{128_000, 4_096}},
	{[]string{"gpt-4"}, ModelCapabilities{8_192, 4_096}},
	{[]string{"gpt-3.5-turbo"}, ModelCapabilities{16_385, 4_096}},
	{[]string{"o1-mini"}, ModelCapabilities{128_000, 65_536}},
	{[]string{"o1", "o3"}, ModelCapabilities{200_000, 100_000}},
	{[]string{"claude"}, ModelCapabilities{200_000, 8_192}},
	{[]string{"gemini"}, ModelCapabilities{1_048_576, 8_192}},
	{[]string{"mistral-large"}, ModelCapabilities{128_000, 8_192}},
	{[]string{"mistral-small", "open-mistral"}, ModelCapabilities{32_000, 4_096}},
	{[]string{"llama3"}, ModelCapabilities{8_192, 2_048}},
}

// CapabilitiesFor returns the known limits of a model by name.
func CapabilitiesFor(model string) ModelCapabilities {
	lower := strings.ToLower(model)
	for _, row := range capabilityTable {
		for _, p := range row.prefixes {
			if strings.HasPrefix(lower, p) {
				return row.caps
			}
		}
	}
	return DefaultCapabilities
}
