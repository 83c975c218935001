package turns

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// ValidationRule names the history invariant a ValidationError is about.
type ValidationRule string

const (
	RuleContentNotList         ValidationRule = "content-not-list"
	RuleEmptyContent           ValidationRule = "empty-content"
	RuleUnmatchedServerToolUse ValidationRule = "unmatched-server-tool-use"
	RuleUnansweredToolUse      ValidationRule = "unanswered-tool-use"
	RuleOrphanToolResult       ValidationRule = "orphan-tool-result"
)

// ValidationError reports which message broke which invariant.
type ValidationError struct {
	Index  int
	Role   Role
	Rule   ValidationRule
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid history: message %d (%s): %s: %s", e.Index, e.Role, e.Rule, e.Detail)
}

type ValidateOptions struct {
	// StrictServerToolResults turns an unmatched server tool use into an error instead of a warning.
	StrictServerToolResults bool
}

// ValidateHistory checks the shape invariants the chat API requires. It returns the first
// violation as a *ValidationError.
func ValidateHistory(msgs []Message, opts ValidateOptions) error {
	for i, m := range msgs {
		if shape := m.Shape(); shape != ShapeList {
			return &ValidationError{
				Index:  i,
				Role:   m.Role,
				Rule:   RuleContentNotList,
				Detail: fmt.Sprintf("content must be a list of blocks, got %s", shape),
			}
		}

		if len(m.Content) == 0 {
			isTrailingAssistant := i == len(msgs)-1 && m.Role == RoleAssistant
			if !isTrailingAssistant {
				return &ValidationError{
					Index:  i,
					Role:   m.Role,
					Rule:   RuleEmptyContent,
					Detail: "content must contain at least one block",
				}
			}
			continue
		}

		if m.Role != RoleAssistant {
			var prev []Block
			if i > 0 && msgs[i-1].Role == RoleAssistant {
				prev = msgs[i-1].Content
			}
			if id, ok := orphanToolResult(m.Content, prev); ok {
				return &ValidationError{
					Index:  i,
					Role:   m.Role,
					Rule:   RuleOrphanToolResult,
					Detail: fmt.Sprintf("tool result %s does not answer a tool use of the previous message", id),
				}
			}
			continue
		}
		var next []Block
		if i+1 < len(msgs) && msgs[i+1].Role != RoleAssistant {
			next = msgs[i+1].Content
		}
		if id, ok := unansweredToolUse(m.Content, next); ok {
			return &ValidationError{
				Index:  i,
				Role:   m.Role,
				Rule:   RuleUnansweredToolUse,
				Detail: fmt.Sprintf("tool use %s has no result in the following message", id),
			}
		}
		for _, id := range unmatchedServerToolUses(m.Content) {
			verr := &ValidationError{
				Index:  i,
				Role:   m.Role,
				Rule:   RuleUnmatchedServerToolUse,
				Detail: fmt.Sprintf("server tool use %s has no result block", id),
			}
			if opts.StrictServerToolResults {
				return verr
			}
			log.Warn().Int("index", i).Str("tool_use_id", id).Msg("turns: server tool use without result")
		}
	}
	return nil
}

func unmatchedServerToolUses(blocks []Block) []string {
	results := map[string]bool{}
	for _, b := range blocks {
		if b.Kind == BlockKindServerToolResult {
			results[b.ToolUseID] = true
		}
	}
	var missing []string
	for _, b := range blocks {
		if b.Kind == BlockKindServerToolUse && !results[b.ID] {
			missing = append(missing, b.ID)
		}
	}
	return missing
}

func idsOf(blocks []Block, kind BlockKind) map[string]bool {
	ids := map[string]bool{}
	for _, b := range blocks {
		switch {
		case b.Kind != kind:
		case kind == BlockKindToolResult:
			ids[b.ToolUseID] = true
		default:
			ids[b.ID] = true
		}
	}
	return ids
}

// unansweredToolUse returns the first tool use in blocks without a tool result in next.
func unansweredToolUse(blocks, next []Block) (string, bool) {
	answered := idsOf(next, BlockKindToolResult)
	for _, b := range blocks {
		if b.Kind == BlockKindToolUse && !answered[b.ID] {
			return b.ID, true
		}
	}
	return "", false
}

// orphanToolResult returns the first tool result in blocks that answers no tool use in prev.
func orphanToolResult(blocks, prev []Block) (string, bool) {
	uses := idsOf(prev, BlockKindToolUse)
	for _, b := range blocks {
		if b.Kind == BlockKindToolResult && !uses[b.ToolUseID] {
			return b.ToolUseID, true
		}
	}
	return "", false
}
