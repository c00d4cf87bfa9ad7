package controller

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/scout/pkg/agent"
	"github.com/codeready-toolchain/scout/pkg/tools"
)

// InjectionStrategy selects how tool results re-enter the conversation.
// All three strategies yield semantically equivalent loop transitions; they
// differ only in the message shape the provider sees.
type InjectionStrategy string

const (
	// InjectToolRole emits one tool-role message per result, echoing the
	// provider's opaque tool_call_id. The native strategy.
	InjectToolRole InjectionStrategy = "tool_role"
	// InjectUserWrapped emits a single user-role message of <tool_result>
	// blocks, for providers without a tool role.
	InjectUserWrapped InjectionStrategy = "user_wrapped"
	// InjectAssistantAck emits an assistant-role acknowledgement. Degraded:
	// used only when the provider rejects both other shapes.
	InjectAssistantAck InjectionStrategy = "assistant_ack"
)

// executedCall pairs a tool call with its result.
type executedCall struct {
	call   agent.ToolCall
	result *tools.Result
}

// injectResults converts executed tool calls into conversation messages per
// the chosen strategy.
func injectResults(strategy InjectionStrategy, executed []executedCall) []agent.ConversationMessage {
	switch strategy {
	case InjectUserWrapped:
		return []agent.ConversationMessage{{
			Role:    agent.RoleUser,
			Content: wrapResults(executed),
		}}
	case InjectAssistantAck:
		var sb strings.Builder
		for _, e := range executed {
			status := "succeeded"
			if !e.result.Success {
				status = "failed: " + e.result.Error
			}
			fmt.Fprintf(&sb, "Tool %s %s.\n%s\n", e.call.Name, status, e.result.Output)
		}
		return []agent.ConversationMessage{{
			Role:    agent.RoleAssistant,
			Content: sb.String(),
		}}
	default: // InjectToolRole
		msgs := make([]agent.ConversationMessage, 0, len(executed))
		for _, e := range executed {
			content := e.result.Output
			if !e.result.Success && content == "" {
				content = e.result.Error
			}
			msgs = append(msgs, agent.ConversationMessage{
				Role:       agent.RoleTool,
				Content:    content,
				ToolCallID: e.call.ID,
				ToolName:   e.call.Name,
			})
		}
		return msgs
	}
}

// wrapResults renders <tool_result> blocks for the user-wrapped strategy.
func wrapResults(executed []executedCall) string {
	var sb strings.Builder
	for _, e := range executed {
		fmt.Fprintf(&sb, "<tool_result name=%q>\n", e.call.Name)
		if e.result.Success {
			fmt.Fprintf(&sb, "<output>%s</output>\n", e.result.Output)
		} else {
			fmt.Fprintf(&sb, "<error>%s</error>\n", e.result.Error)
		}
		sb.WriteString("</tool_result>\n")
	}
	return sb.String()
}
