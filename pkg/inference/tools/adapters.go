package tools

import (
	"encoding/json"
	"fmt"
)

// ProviderLimits describes what a model API accepts in its tool list.
type ProviderLimits struct {
	MaxToolsPerRequest int
	MaxToolNameLength  int
	MaxTotalSizeBytes  int
}

var (
	OpenAILimits = ProviderLimits{
		MaxToolsPerRequest: 128,
		MaxToolNameLength:  64,
	}
	ClaudeLimits = ProviderLimits{
		MaxToolsPerRequest: 64,
		MaxToolNameLength:  64,
		MaxTotalSizeBytes:  51200, // 50KB total
	}
)

// ValidateForProvider checks a tool list against provider limits before it is sent.
func ValidateForProvider(defs []ToolDefinition, limits ProviderLimits) error {
	if limits.MaxToolsPerRequest > 0 && len(defs) > limits.MaxToolsPerRequest {
		return fmt.Errorf("too many tools: %d > %d", len(defs), limits.MaxToolsPerRequest)
	}
	total := 0
	for i := range defs {
		if limits.MaxToolNameLength > 0 && len(defs[i].Name) > limits.MaxToolNameLength {
			return fmt.Errorf("tool name too long: %d > %d", len(defs[i].Name), limits.MaxToolNameLength)
		}
		raw, err := defs[i].SchemaJSON()
		if err != nil {
			return err
		}
		total += len(raw) + len(defs[i].Description)
	}
	if limits.MaxTotalSizeBytes > 0 && total > limits.MaxTotalSizeBytes {
		return fmt.Errorf("tool definitions too large: %d > %d bytes", total, limits.MaxTotalSizeBytes)
	}
	return nil
}

// ParametersMap converts the parameter schema to a plain map for provider payloads.
func (d *ToolDefinition) ParametersMap() (map[string]any, error) {
	raw, err := d.SchemaJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	return m, nil
}
