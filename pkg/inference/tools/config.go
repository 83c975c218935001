package tools

// ToolConfig specifies how tools are offered to the model and executed.
type ToolConfig struct {
	Enabled        bool       `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	AllowedTools   []string   `json:"allowed_tools" yaml:"allowed_tools" mapstructure:"allowed_tools"`
	ValidateInputs bool       `json:"validate_inputs" yaml:"validate_inputs" mapstructure:"validate_inputs"`
	// MaxResultBytes truncates tool output fed back to the model. 0 disables truncation.
	MaxResultBytes int `json:"max_result_bytes" yaml:"max_result_bytes" mapstructure:"max_result_bytes"`
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		Enabled:        true,
		AllowedTools:   nil, // nil means all tools are allowed
		ValidateInputs: true,
		MaxResultBytes: 64 * 1024,
	}
}

func (tc ToolConfig) WithEnabled(enabled bool) ToolConfig {
	tc.Enabled = enabled
	return tc
}

func (tc ToolConfig) WithAllowedTools(toolNames []string) ToolConfig {
	tc.AllowedTools = toolNames
	return tc
}

func (tc ToolConfig) WithValidateInputs(validate bool) ToolConfig {
	tc.ValidateInputs = validate
	return tc
}

func (tc ToolConfig) WithMaxResultBytes(n int) ToolConfig {
	tc.MaxResultBytes = n
	return tc
}

// ToolChoice defines how the model should choose tools
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// IsToolAllowed checks if a tool is allowed based on the configuration
func (tc *ToolConfig) IsToolAllowed(toolName string) bool {
	if tc.AllowedTools == nil {
		return true
	}

	for _, allowed := range tc.AllowedTools {
		if allowed == toolName {
			return true
		}
	}

	return false
}

// FilterTools returns only the tools that are allowed by this configuration
func (tc *ToolConfig) FilterTools(tools []ToolDefinition) []ToolDefinition {
	if !tc.Enabled {
		return nil
	}
	if tc.AllowedTools == nil {
		return tools
	}

	filtered := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		if tc.IsToolAllowed(tool.Name) {
			filtered = append(filtered, tool)
		}
	}

	return filtered
}
