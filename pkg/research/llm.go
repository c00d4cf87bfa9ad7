package research

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/scout/pkg/agent"
)

// completeText runs a single-turn LLM call and returns the accumulated text.
func (n *Nodes) completeText(ctx context.Context, node, model string, msgs []agent.ConversationMessage) (string, error) {
	stream, err := n.LLM.Generate(ctx, &agent.GenerateInput{
		RunID:    n.runID,
		Node:     node,
		Model:    model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("llm call (%s): %w", node, err)
	}
	completion, err := agent.Collect(ctx, stream)
	if err != nil {
		return "", fmt.Errorf("llm call (%s): %w", node, err)
	}
	return completion.Content, nil
}

// structured runs an LLM call expecting a JSON document matching T. Malformed
// output gets exactly one re-prompt; the second failure is returned so the
// caller can install its deterministic fallback (and record the diagnostic).
func structured[T any](ctx context.Context, n *Nodes, node, model string, msgs []agent.ConversationMessage) (T, error) {
	var zero T
	content, err := n.completeText(ctx, node, model, msgs)
	if err != nil {
		return zero, err
	}
	out, decodeErr := agent.DecodeStructured[T](content)
	if decodeErr == nil {
		return out, nil
	}

	n.Logger.Warn("malformed structured output, re-prompting",
		"run_id", n.runID, "node", node, "error", decodeErr)
	retryMsgs := append(append([]agent.ConversationMessage(nil), msgs...),
		agent.ConversationMessage{Role: agent.RoleAssistant, Content: content},
		agent.ConversationMessage{
			Role:    agent.RoleUser,
			Content: "Your previous response was not valid JSON. Respond again with ONLY the JSON document.",
		})
	content, err = n.completeText(ctx, node, model, retryMsgs)
	if err != nil {
		return zero, err
	}
	out, decodeErr = agent.DecodeStructured[T](content)
	if decodeErr != nil {
		return zero, fmt.Errorf("structured output (%s) malformed after re-prompt: %w", node, decodeErr)
	}
	return out, nil
}
