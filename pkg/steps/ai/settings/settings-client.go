package settings

import (
	"net/http"
	"time"

	"github.com/huandu/go-clone"
	"gopkg.in/yaml.v3"
)

type ClientSettings struct {
	Timeout        *time.Duration `yaml:"-" mapstructure:"-"`
	TimeoutSeconds *int           `yaml:"timeout_second,omitempty" mapstructure:"timeout"`
	UserAgent      *string        `yaml:"user_agent,omitempty" mapstructure:"user-agent"`
	HTTPClient     *http.Client   `yaml:"-" json:"-" mapstructure:"-"`
}

// UnmarshalYAML overrides YAML parsing to convert time.duration from int
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	type Alias ClientSettings
	aux := struct {
		Timeout *int `yaml:"timeout,omitempty"`
		Alias   `yaml:",inline"`
	}{
		Alias: Alias(*cs),
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*cs = ClientSettings(aux.Alias)
	if aux.Timeout != nil {
		t := time.Duration(*aux.Timeout) * time.Second
		cs.Timeout = &t
		cs.TimeoutSeconds = aux.Timeout
	}
	return nil
}

func (cs *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(cs).(*ClientSettings)
}

// NewHTTPClient returns the configured client, or a new one honoring the timeout.
// A zero timeout leaves the client without one; streaming requests are then bounded by
// the request context only.
func (cs *ClientSettings) NewHTTPClient() *http.Client {
	if cs == nil {
		return &http.Client{}
	}
	if cs.HTTPClient != nil {
		return cs.HTTPClient
	}
	c := &http.Client{}
	switch {
	case cs.TimeoutSeconds != nil && *cs.TimeoutSeconds > 0:
		c.Timeout = time.Duration(*cs.TimeoutSeconds) * time.Second
	case cs.Timeout != nil:
		c.Timeout = *cs.Timeout
	}
	if cs.UserAgent != nil && *cs.UserAgent != "" {
		c.Transport = &userAgentTransport{agent: *cs.UserAgent, next: http.DefaultTransport}
	}
	return c
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(r)
}

// NewClientSettings returns settings without a timeout: requests are bounded by their
// context.
func NewClientSettings() *ClientSettings {
	return &ClientSettings{}
}
