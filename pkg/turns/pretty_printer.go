package turns

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// PrettyPrinter renders a conversation in a configurable human-friendly way.
type PrettyPrinter struct {
	IncludeIDs        bool
	IncludeThinking   bool
	IncludeToolDetail bool
	IndentSpaces      int
	MaxTextLines      int // 0 => unlimited
}

// PrintOption configures a PrettyPrinter.
type PrintOption func(*PrettyPrinter)

// WithIDs toggles inclusion of tool use ids.
func WithIDs(include bool) PrintOption { return func(p *PrettyPrinter) { p.IncludeIDs = include } }

func WithThinking(include bool) PrintOption {
	return func(p *PrettyPrinter) { p.IncludeThinking = include }
}

// WithToolDetail toggles inclusion of tool inputs and results.
func WithToolDetail(include bool) PrintOption {
	return func(p *PrettyPrinter) { p.IncludeToolDetail = include }
}

func WithIndent(spaces int) PrintOption { return func(p *PrettyPrinter) { p.IndentSpaces = spaces } }

// WithMaxTextLines limits how many lines of each text body are printed (0 = unlimited).
func WithMaxTextLines(n int) PrintOption { return func(p *PrettyPrinter) { p.MaxTextLines = n } }

func NewPrettyPrinter(opts ...PrintOption) *PrettyPrinter {
	p := &PrettyPrinter{
		IncludeToolDetail: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FprintHistory prints msgs using an ephemeral PrettyPrinter configured via options.
func FprintHistory(w io.Writer, msgs []Message, opts ...PrintOption) {
	NewPrettyPrinter(opts...).FprintHistory(w, msgs)
}

func (p *PrettyPrinter) FprintHistory(w io.Writer, msgs []Message) {
	for _, m := range msgs {
		p.FprintMessage(w, m)
	}
}

// FprintMessage emits one line per block, labelled with the message role.
func (p *PrettyPrinter) FprintMessage(w io.Writer, m Message) {
	pad := strings.Repeat(" ", p.IndentSpaces)
	role := string(m.Role)
	if len(m.Content) == 0 {
		fmt.Fprintf(w, "%s%s: <empty>\n", pad, role)
		return
	}
	for _, b := range m.Content {
		id := ""
		if p.IncludeIDs {
			switch {
			case b.ID != "":
				id = " id=" + b.ID
			case b.ToolUseID != "":
				id = " id=" + b.ToolUseID
			}
		}

		switch b.Kind {
		case BlockKindText:
			p.fprintText(w, pad+role+":", b.Text)
		case BlockKindThinking:
			if p.IncludeThinking {
				p.fprintText(w, pad+role+" (thinking):", b.Thinking)
			}
		case BlockKindToolUse, BlockKindServerToolUse:
			fmt.Fprintf(w, "%s%s: tool_use %s%s\n", pad, role, b.Name, id)
			if p.IncludeToolDetail && len(b.Input) > 0 {
				fmt.Fprintf(w, "%s  input: %s\n", pad, toOneLineJSON(b.Input))
			}
		case BlockKindToolResult:
			status := "ok"
			if b.IsError {
				status = "error"
			}
			fmt.Fprintf(w, "%s%s: tool_result %s%s\n", pad, role, status, id)
			if p.IncludeToolDetail && b.Content != "" {
				p.fprintText(w, pad+"  result:", b.Content)
			}
		case BlockKindServerToolResult:
			fmt.Fprintf(w, "%s%s: %s%s\n", pad, role, b.Name, id)
		default:
			fmt.Fprintf(w, "%s%s: <%s>\n", pad, role, b.Kind)
		}
	}
}

func (p *PrettyPrinter) fprintText(w io.Writer, head string, text string) {
	if p.MaxTextLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > p.MaxTextLines {
			text = strings.Join(lines[:p.MaxTextLines], "\n") + " …"
		}
	}
	fmt.Fprintf(w, "%s %s\n", head, text)
}

func toOneLineJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
