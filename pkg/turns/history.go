package turns

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// History is the ordered, append-only conversation of one session.
// It is owned by a single agent and is not safe for concurrent use.
type History struct {
	messages []Message
}

func NewHistory(msgs ...Message) *History {
	h := &History{}
	h.Append(msgs...)
	return h
}

func (h *History) Append(msgs ...Message) {
	h.messages = append(h.messages, msgs...)
}

// Messages returns a copy of the message slice. Blocks are shared.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	return len(h.messages)
}

func (h *History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

func (h *History) Reset() {
	h.messages = nil
}

// Clone returns a deep copy.
func (h *History) Clone() *History {
	if h == nil {
		return nil
	}
	if len(h.messages) == 0 {
		return &History{}
	}
	return &History{messages: clone.Clone(h.messages).([]Message)}
}

// DecodeHistory parses a history document. JSON is detected by a leading '[',
// anything else is parsed as YAML.
func DecodeHistory(data []byte) ([]Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	var msgs []Message
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &msgs); err != nil {
			return nil, errors.Wrap(err, "decode json history")
		}
		return msgs, nil
	}
	if err := yaml.Unmarshal([]byte(trimmed), &msgs); err != nil {
		return nil, errors.Wrap(err, "decode yaml history")
	}
	return msgs, nil
}

// LoadHistoryFile reads a .json, .yaml or .yml history file.
func LoadHistoryFile(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read history %s", path)
	}
	return DecodeHistory(data)
}

// SaveHistoryFile writes msgs to path, choosing JSON or YAML from the extension.
func SaveHistoryFile(path string, msgs []Message) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(msgs, "", "  ")
	} else {
		data, err = yaml.Marshal(msgs)
	}
	if err != nil {
		return errors.Wrap(err, "encode history")
	}
	return os.WriteFile(path, data, 0o644)
}
