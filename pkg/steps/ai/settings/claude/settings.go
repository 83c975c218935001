package claude

type Settings struct {
	TopK    *int    `yaml:"top_k,omitempty" mapstructure:"top-k"`
	UserID  *string `yaml:"user_id,omitempty" mapstructure:"user-id"`
	BaseURL *string `yaml:"base_url,omitempty" mapstructure:"base-url"`
	APIKey  *string `yaml:"api_key,omitempty" mapstructure:"api-key"`

	// WebSearch turns on the server-side web search tool.
	WebSearch        bool `yaml:"web_search,omitempty" mapstructure:"web-search"`
	WebSearchMaxUses int  `yaml:"web_search_max_uses,omitempty" mapstructure:"web-search-max-uses"`
}

func NewSettings() *Settings {
	return &Settings{
		TopK:             nil,
		UserID:           nil,
		WebSearchMaxUses: 5,
	}
}

func (s *Settings) Clone() *Settings {
	ret := *s
	return &ret
}
