// Package agent defines the LLM client contract shared by the graph nodes,
// the continuation controller, and the provider implementations: message and
// tool-call types, the streaming chunk protocol, and conversation-history
// token accounting.
package agent

import "context"

// LLMClient is the interface every LLM provider implementation satisfies.
// It provides a channel-based streaming API; callers that want a fully
// accumulated response use Collect.
type LLMClient interface {
	// Generate sends a conversation to the LLM and returns a stream of chunks.
	// The returned channel is closed when the stream completes.
	// Errors are delivered as ErrorChunk values in the channel.
	Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error)

	// Close releases the underlying connection.
	Close() error
}

// GenerateInput is a single Generate request.
type GenerateInput struct {
	RunID    string
	Node     string // originating graph node, for tracing and test routing
	Model    string // empty = provider default
	Messages []ConversationMessage
	Tools    []ToolDefinition // nil = no tools
	// ResponseSchema, when non-empty, requests structured output validated
	// against this JSON Schema. Providers without native schema support
	// append a formatting instruction instead.
	ResponseSchema string
	MaxTokens      int // 0 = provider default
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ConversationMessage is one turn of the conversation.
type ConversationMessage struct {
	Role       string // RoleSystem, RoleUser, RoleAssistant, RoleTool
	Content    string
	Name       string     // optional speaker tag
	ToolCalls  []ToolCall // for assistant messages
	ToolCallID string     // for tool result messages
	ToolName   string     // for tool result messages
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall represents an LLM's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// FinishReason tells why the LLM stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishEndTurn   FinishReason = "end_turn"
	FinishToolCalls FinishReason = "tool_calls"
	FinishFuncCall  FinishReason = "function_call"
	FinishLength    FinishReason = "length"
	FinishMaxTokens FinishReason = "max_tokens"
)

// Natural reports whether the reason is a natural stop (as opposed to a
// truncation or a tool-call pause).
func (r FinishReason) Natural() bool {
	return r == FinishStop || r == FinishEndTurn
}

// Truncated reports whether generation was cut off by a token limit.
func (r FinishReason) Truncated() bool {
	return r == FinishLength || r == FinishMaxTokens
}

// RequestsTools reports whether the provider paused to let the caller run tools.
func (r FinishReason) RequestsTools() bool {
	return r == FinishToolCalls || r == FinishFuncCall
}

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeThinking ChunkType = "thinking"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeFinish   ChunkType = "finish"
	ChunkTypeError    ChunkType = "error"
)

// TextChunk is a chunk of the LLM's text response.
type TextChunk struct{ Content string }

// ThinkingChunk is a chunk of the LLM's internal reasoning.
type ThinkingChunk struct{ Content string }

// ToolCallChunk signals the LLM wants to call a tool. Arguments carry the
// complete JSON payload; providers that stream argument fragments accumulate
// them before emitting the chunk.
type ToolCallChunk struct{ CallID, Name, Arguments string }

// UsageChunk reports token consumption for this LLM call.
type UsageChunk struct{ InputTokens, OutputTokens, TotalTokens int32 }

// FinishChunk is the last content-bearing chunk of a stream and carries the
// provider's finish reason.
type FinishChunk struct{ Reason FinishReason }

// ErrorChunk signals an error from the LLM provider.
type ErrorChunk struct {
	Message   string
	Code      string
	Retryable bool
}

func (c *TextChunk) chunkType() ChunkType     { return ChunkTypeText }
func (c *ThinkingChunk) chunkType() ChunkType { return ChunkTypeThinking }
func (c *ToolCallChunk) chunkType() ChunkType { return ChunkTypeToolCall }
func (c *UsageChunk) chunkType() ChunkType    { return ChunkTypeUsage }
func (c *FinishChunk) chunkType() ChunkType   { return ChunkTypeFinish }
func (c *ErrorChunk) chunkType() ChunkType    { return ChunkTypeError }

// Usage is accumulated token consumption.
type Usage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
	TotalTokens  int32 `json:"total_tokens"`
}

// Add accumulates another usage report.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Completion is a fully accumulated LLM response.
type Completion struct {
	Content      string
	Thinking     string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// LLMError is a terminal provider error surfaced through the chunk stream.
type LLMError struct {
	Message   string
	Code      string
	Retryable bool
}

func (e *LLMError) Error() string {
	if e.Code != "" {
		return "llm: " + e.Code + ": " + e.Message
	}
	return "llm: " + e.Message
}

// Collect drains a chunk stream into a Completion. It returns early with the
// context error if ctx is cancelled, and with an *LLMError if the stream
// delivers an ErrorChunk. A stream that closes without a FinishChunk yields
// FinishStop: providers signal truncation explicitly, never by omission.
func Collect(ctx context.Context, ch <-chan Chunk) (*Completion, error) {
	comp := &Completion{FinishReason: FinishStop}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				if len(comp.ToolCalls) > 0 && !comp.FinishReason.RequestsTools() {
					// Some providers report "stop" even when tool calls are
					// present; normalize so callers can trust the reason.
					comp.FinishReason = FinishToolCalls
				}
				return comp, nil
			}
			switch c := chunk.(type) {
			case *TextChunk:
				comp.Content += c.Content
			case *ThinkingChunk:
				comp.Thinking += c.Content
			case *ToolCallChunk:
				comp.ToolCalls = append(comp.ToolCalls, ToolCall{
					ID:        c.CallID,
					Name:      c.Name,
					Arguments: c.Arguments,
				})
			case *UsageChunk:
				comp.Usage.Add(Usage{
					InputTokens:  c.InputTokens,
					OutputTokens: c.OutputTokens,
					TotalTokens:  c.TotalTokens,
				})
			case *FinishChunk:
				comp.FinishReason = c.Reason
			case *ErrorChunk:
				return nil, &LLMError{Message: c.Message, Code: c.Code, Retryable: c.Retryable}
			}
		}
	}
}
