package chat

import (
	"github.com/pkg/errors"
)

// ValidateToolPairing checks the transcript invariant that every tool
// message answers a tool call issued by the nearest preceding assistant
// message. Returns the first violation found.
func ValidateToolPairing(msgs []Message) error {
	pending := map[string]bool{}
	for i, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			pending = map[string]bool{}
			for _, c := range m.ToolCalls {
				pending[c.ID] = true
			}
		case RoleTool:
			if m.ToolCallID == "" {
				return errors.Errorf("message %d: tool message without tool_call_id", i)
			}
			if !pending[m.ToolCallID] {
				return errors.Errorf("message %d: tool_call_id %s does not match the preceding assistant message", i, m.ToolCallID)
			}
		default:
			// any other role closes the window for pending calls
			pending = map[string]bool{}
		}
	}
	return nil
}

// LastAssistantContent returns the content of the most recent assistant
// message, or "" when the transcript has none.
func LastAssistantContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}
