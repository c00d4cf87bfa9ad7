package controller

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/scout/pkg/agent"
	"github.com/codeready-toolchain/scout/pkg/tools"
)

// scriptedClient replays canned chunk sequences, one entry per Generate call.
type scriptedClient struct {
	script [][]agent.Chunk
	calls  []*agent.GenerateInput
}

func (c *scriptedClient) Generate(_ context.Context, input *agent.GenerateInput) (<-chan agent.Chunk, error) {
	c.calls = append(c.calls, input)
	idx := len(c.calls) - 1
	if idx >= len(c.script) {
		return nil, fmt.Errorf("scripted client exhausted after %d calls", len(c.script))
	}
	ch := make(chan agent.Chunk, len(c.script[idx]))
	for _, chunk := range c.script[idx] {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (c *scriptedClient) Close() error { return nil }

func text(s string) agent.Chunk                    { return &agent.TextChunk{Content: s} }
func finish(r agent.FinishReason) agent.Chunk      { return &agent.FinishChunk{Reason: r} }
func nativeCall(id, name, args string) agent.Chunk { return &agent.ToolCallChunk{CallID: id, Name: name, Arguments: args} }

func newContinuation(client agent.LLMClient, reg *tools.Registry, policy Policy) *Continuation {
	return &Continuation{Client: client, Registry: reg, Policy: policy}
}

func recordingSearchTool(t *testing.T, record *[]map[string]any) tools.Tool {
	t.Helper()
	return tools.NewFunc("search_web", "test search",
		func(_ context.Context, args struct {
			Query      string `json:"query"`
			MaxResults int    `json:"max_results"`
		}) (any, error) {
			*record = append(*record, map[string]any{"query": args.Query, "max_results": args.MaxResults})
			return "result for " + args.Query, nil
		})
}

func TestContinuationMarkupToolCall(t *testing.T) {
	var recorded []map[string]any
	reg := tools.NewRegistry(tools.RetryPolicy{})
	require.NoError(t, reg.Register(recordingSearchTool(t, &recorded), false))

	client := &scriptedClient{script: [][]agent.Chunk{
		{text(streamingChunks[0]), text(streamingChunks[1]), finish(agent.FinishStop)},
		{text("asyncio is Python's event loop library."), finish(agent.FinishStop)},
	}}

	cont := newContinuation(client, reg, Policy{ContinueOnToolCalls: true, MaxIterations: 5})
	out, err := cont.Run(context.Background(), RunInput{
		RunID:    "run-1",
		Node:     "writer",
		Messages: []agent.ConversationMessage{{Role: agent.RoleUser, Content: "explain asyncio"}},
	})
	require.NoError(t, err)

	// Exactly one tool call, with type-inferred arguments.
	require.Len(t, recorded, 1)
	assert.Equal(t, "asyncio", recorded[0]["query"])
	assert.Equal(t, 3, recorded[0]["max_results"])

	// One tool result injected, then the loop advanced to a second LLM call.
	require.Len(t, client.calls, 2)
	secondCall := client.calls[1].Messages
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, agent.RoleTool, last.Role)
	assert.Contains(t, last.Content, "result for asyncio")

	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, 1, out.ToolCalls)
	assert.Equal(t, StopNatural, out.Stopped)
	assert.Equal(t, "asyncio is Python's event loop library.", out.FinalText)
}

func TestContinuationNativeToolCall(t *testing.T) {
	var recorded []map[string]any
	reg := tools.NewRegistry(tools.RetryPolicy{})
	require.NoError(t, reg.Register(recordingSearchTool(t, &recorded), false))

	client := &scriptedClient{script: [][]agent.Chunk{
		{nativeCall("call_abc", "search_web", `{"query":"go generics","max_results":2}`), finish(agent.FinishToolCalls)},
		{text("done"), finish(agent.FinishEndTurn)},
	}}

	cont := newContinuation(client, reg, Policy{ContinueOnToolCalls: true, MaxIterations: 5})
	out, err := cont.Run(context.Background(), RunInput{RunID: "run-2"})
	require.NoError(t, err)

	require.Len(t, recorded, 1)
	assert.Equal(t, "go generics", recorded[0]["query"])

	// The injected tool-role message echoes the provider's opaque call id.
	secondCall := client.calls[1].Messages
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, "call_abc", last.ToolCallID)
	assert.Equal(t, StopNatural, out.Stopped)
}

func TestContinuationMaxIterations(t *testing.T) {
	reg := tools.NewRegistry(tools.RetryPolicy{})
	require.NoError(t, reg.Register(tools.NewFunc("noop", "", func(_ context.Context, _ struct{}) (any, error) {
		return "ok", nil
	}), false))

	// Every response requests another tool call; the loop must cut at the
	// iteration budget.
	loop := []agent.Chunk{nativeCall("c", "noop", `{}`), finish(agent.FinishToolCalls)}
	client := &scriptedClient{script: [][]agent.Chunk{loop, loop, loop, loop}}

	cont := newContinuation(client, reg, Policy{ContinueOnToolCalls: true, MaxIterations: 2})
	out, err := cont.Run(context.Background(), RunInput{RunID: "run-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, StopMaxIterations, out.Stopped)
}

func TestContinuationStopOnToolFailure(t *testing.T) {
	reg := tools.NewRegistry(tools.RetryPolicy{})
	require.NoError(t, reg.Register(tools.NewFunc("fragile", "", func(_ context.Context, _ struct{}) (any, error) {
		return nil, fmt.Errorf("boom")
	}), false))

	client := &scriptedClient{script: [][]agent.Chunk{
		{nativeCall("c1", "fragile", `{}`), finish(agent.FinishToolCalls)},
	}}

	cont := newContinuation(client, reg, Policy{ContinueOnToolCalls: true, StopOnToolFailure: true, MaxIterations: 5})
	out, err := cont.Run(context.Background(), RunInput{RunID: "run-4"})
	require.NoError(t, err)
	assert.Equal(t, StopToolFailure, out.Stopped)
	require.Len(t, out.ToolFailures, 1)
	assert.Contains(t, out.ToolFailures[0], "fragile")
}

func TestContinuationBudgetBreachIsFatal(t *testing.T) {
	reg := tools.NewRegistry(tools.RetryPolicy{})
	require.NoError(t, reg.Register(tools.NewFunc("noop", "", func(_ context.Context, _ struct{}) (any, error) {
		return "ok", nil
	}), false))

	loop := []agent.Chunk{nativeCall("c", "noop", `{}`), finish(agent.FinishToolCalls)}
	client := &scriptedClient{script: [][]agent.Chunk{loop, loop, loop}}

	cont := newContinuation(client, reg, Policy{ContinueOnToolCalls: true, MaxIterations: 10})
	cont.Budget = tools.NewBudget(1)

	_, err := cont.Run(context.Background(), RunInput{RunID: "run-5"})
	require.ErrorIs(t, err, tools.ErrBudgetExceeded)
}

func TestContinuationParallelPreservesOrder(t *testing.T) {
	reg := tools.NewRegistry(tools.RetryPolicy{})
	require.NoError(t, reg.Register(tools.NewFunc("echo", "", func(_ context.Context, args struct {
		Value string `json:"value"`
		Delay int    `json:"delay"`
	}) (any, error) {
		time.Sleep(time.Duration(args.Delay) * time.Millisecond)
		return args.Value, nil
	}), false))

	// First call is slowest; positional order must still hold.
	client := &scriptedClient{script: [][]agent.Chunk{
		{
			nativeCall("c1", "echo", `{"value":"first","delay":30}`),
			nativeCall("c2", "echo", `{"value":"second","delay":10}`),
			nativeCall("c3", "echo", `{"value":"third","delay":1}`),
			finish(agent.FinishToolCalls),
		},
		{text("done"), finish(agent.FinishStop)},
	}}

	cont := newContinuation(client, reg, Policy{ContinueOnToolCalls: true, MaxIterations: 5, Parallel: true})
	out, err := cont.Run(context.Background(), RunInput{RunID: "run-6"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ToolCalls)

	second := client.calls[1].Messages
	injected := second[len(second)-3:]
	assert.Equal(t, "first", injected[0].Content)
	assert.Equal(t, "second", injected[1].Content)
	assert.Equal(t, "third", injected[2].Content)
}

func TestContinuationCancellation(t *testing.T) {
	reg := tools.NewRegistry(tools.RetryPolicy{})
	client := &scriptedClient{script: [][]agent.Chunk{
		{text("x"), finish(agent.FinishStop)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cont := newContinuation(client, reg, Policy{MaxIterations: 5})
	out, err := cont.Run(ctx, RunInput{RunID: "run-7"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, out.Stopped)
	assert.Empty(t, client.calls, "no LLM call after cancellation")
}
