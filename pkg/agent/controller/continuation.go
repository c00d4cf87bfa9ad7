package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/scout/pkg/agent"
	"github.com/codeready-toolchain/scout/pkg/tools"
)

// Continuation drives a single agent-style node through multi-turn tool use:
// Calling → Detect → Execute → Calling, until Decide says stop. The loop is
// cooperatively cancellable; every LLM and tool boundary checks the context.
type Continuation struct {
	Client   agent.LLMClient
	Registry *tools.Registry
	Budget   *tools.Budget
	Policy   Policy
	Inject   InjectionStrategy // zero value selects InjectToolRole
	Logger   *slog.Logger
}

// RunInput describes one continuation run.
type RunInput struct {
	RunID    string
	Node     string
	Model    string
	Messages []agent.ConversationMessage
	Tools    []agent.ToolDefinition
}

// RunOutput is the accumulated outcome of a continuation run.
type RunOutput struct {
	// Messages is the full conversation including injected tool results.
	Messages []agent.ConversationMessage
	// FinalText is the visible text of the last assistant turn, markup
	// stripped.
	FinalText string
	Iterations int
	ToolCalls  int
	Usage      agent.Usage
	Stopped    StopCause
	// ToolFailures collects failed tool results for the caller's errors list.
	ToolFailures []string
}

// Run executes the continuation loop. Fatal conditions (budget exhaustion,
// unknown tool, provider error, cancellation) return an error alongside the
// partial output accumulated so far.
func (c *Continuation) Run(ctx context.Context, input RunInput) (*RunOutput, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default().With("component", "continuation")
	}
	policy := c.Policy
	if policy.MaxIterations <= 0 {
		policy.MaxIterations = DefaultPolicy.MaxIterations
	}

	out := &RunOutput{Messages: append([]agent.ConversationMessage(nil), input.Messages...)}

	for {
		if err := ctx.Err(); err != nil {
			out.Stopped = StopCancelled
			return out, err
		}

		completion, err := c.call(ctx, input, out.Messages)
		if err != nil {
			if ctx.Err() != nil {
				out.Stopped = StopCancelled
			}
			return out, err
		}
		out.Iterations++
		out.Usage.Add(completion.Usage)

		// Detect: native calls from the provider plus tagged-markup calls
		// embedded in the text.
		visible, calls := c.detect(completion)
		if visible != "" || len(calls) > 0 {
			out.Messages = append(out.Messages, agent.ConversationMessage{
				Role:      agent.RoleAssistant,
				Content:   visible,
				ToolCalls: calls,
			})
		}
		out.FinalText = visible

		toolFailed := false
		if len(calls) > 0 {
			executed, err := c.execute(ctx, calls, policy.Parallel)
			if err != nil {
				return out, err
			}
			out.ToolCalls += len(executed)
			for _, e := range executed {
				if !e.result.Success {
					toolFailed = true
					out.ToolFailures = append(out.ToolFailures,
						fmt.Sprintf("%s: %s", e.call.Name, e.result.Error))
				}
			}
			out.Messages = append(out.Messages, injectResults(c.Inject, executed)...)
		}

		decision := Decide(out.Iterations, completion.FinishReason, len(calls) > 0, toolFailed, policy)
		logger.Debug("continuation decision",
			"run_id", input.RunID, "node", input.Node,
			"iteration", out.Iterations, "finish_reason", completion.FinishReason,
			"tool_calls", len(calls), "continue", decision.Continue)
		if !decision.Continue {
			out.Stopped = decision.Cause
			return out, nil
		}
	}
}

func (c *Continuation) call(ctx context.Context, input RunInput, msgs []agent.ConversationMessage) (*agent.Completion, error) {
	stream, err := c.Client.Generate(ctx, &agent.GenerateInput{
		RunID:    input.RunID,
		Node:     input.Node,
		Model:    input.Model,
		Messages: msgs,
		Tools:    input.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}
	return agent.Collect(ctx, stream)
}

// detect merges native tool calls with tagged-markup ones parsed out of the
// completion text. Markup calls get synthetic IDs so every injection
// strategy can reference them uniformly.
func (c *Continuation) detect(completion *agent.Completion) (string, []agent.ToolCall) {
	visible, markupCalls := ParseMarkup(completion.Content)
	calls := append([]agent.ToolCall(nil), completion.ToolCalls...)
	for _, inv := range markupCalls {
		args, err := json.Marshal(inv.Args)
		if err != nil {
			args = []byte("{}")
		}
		calls = append(calls, agent.ToolCall{
			ID:        "markup_" + uuid.NewString()[:8],
			Name:      inv.Name,
			Arguments: string(args),
		})
	}
	return visible, calls
}

// execute runs the detected calls, sequentially or in parallel. Parallel
// execution preserves positional order of results.
func (c *Continuation) execute(ctx context.Context, calls []agent.ToolCall, parallel bool) ([]executedCall, error) {
	executed := make([]executedCall, len(calls))

	runOne := func(i int, call agent.ToolCall) error {
		args, err := decodeArgs(call.Arguments)
		if err != nil {
			executed[i] = executedCall{call: call, result: tools.Fail(err)}
			return nil
		}
		result, err := c.Registry.Execute(ctx, call.Name, args, c.Budget)
		if err != nil {
			return err
		}
		executed[i] = executedCall{call: call, result: result}
		return nil
	}

	if !parallel || len(calls) == 1 {
		for i, call := range calls {
			if err := ctx.Err(); err != nil {
				return executed[:i], err
			}
			if err := runOne(i, call); err != nil {
				return executed[:i], err
			}
		}
		return executed, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(calls))
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call agent.ToolCall) {
			defer wg.Done()
			errs[i] = runOne(i, call)
		}(i, call)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return executed, err
		}
	}
	return executed, nil
}

func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}
