// Package llm implements the provider client behind agent.LLMClient using
// the OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/codeready-toolchain/scout/pkg/agent"
)

// Config holds provider connection settings.
type Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Model is the default; GenerateInput.Model overrides per call.
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Client streams chat completions and translates them into agent chunks.
type Client struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient builds a client for any OpenAI-compatible endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	return &Client{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: slog.Default().With("component", "llm"),
	}, nil
}

// Close satisfies agent.LLMClient; the HTTP client holds no connections to
// tear down.
func (c *Client) Close() error { return nil }

// Generate streams one completion. The returned channel closes after the
// finish chunk; provider errors surface as an error chunk then close.
func (c *Client) Generate(ctx context.Context, input *agent.GenerateInput) (<-chan agent.Chunk, error) {
	params, err := c.buildParams(input)
	if err != nil {
		return nil, err
	}

	out := make(chan agent.Chunk, 64)
	go func() {
		defer close(out)
		start := time.Now()

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				select {
				case out <- &agent.TextChunk{Content: content}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- &agent.ErrorChunk{Message: fmt.Sprintf("llm stream: %v", err), Retryable: true}
			return
		}
		if len(acc.Choices) == 0 {
			out <- &agent.ErrorChunk{Message: "llm stream: no choices returned"}
			return
		}

		choice := acc.Choices[0]
		for _, tc := range choice.Message.ToolCalls {
			out <- &agent.ToolCallChunk{
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
		out <- &agent.UsageChunk{
			InputTokens:  int32(acc.Usage.PromptTokens),
			OutputTokens: int32(acc.Usage.CompletionTokens),
			TotalTokens:  int32(acc.Usage.TotalTokens),
		}
		out <- &agent.FinishChunk{Reason: agent.FinishReason(choice.FinishReason)}

		c.logger.Debug("completion finished",
			"run_id", input.RunID, "node", input.Node, "model", params.Model,
			"finish_reason", choice.FinishReason,
			"total_tokens", acc.Usage.TotalTokens,
			"duration_ms", time.Since(start).Milliseconds())
	}()
	return out, nil
}

func (c *Client) buildParams(input *agent.GenerateInput) (openai.ChatCompletionNewParams, error) {
	model := input.Model
	if model == "" {
		model = c.cfg.Model
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertMessages(input.Messages),
	}
	if input.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(input.MaxTokens))
	} else if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.cfg.MaxTokens))
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = openai.Float(c.cfg.Temperature)
	}
	if len(input.Tools) > 0 {
		tools, err := convertTools(input.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}
	if input.ResponseSchema != "" {
		var schema map[string]any
		if err := json.Unmarshal([]byte(input.ResponseSchema), &schema); err != nil {
			return params, fmt.Errorf("llm: invalid response schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: schema,
				},
			},
		}
	}
	return params, nil
}

func convertMessages(msgs []agent.ConversationMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agent.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				calls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					calls[i] = openai.ChatCompletionMessageToolCallParam{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					}
				}
				out = append(out, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)},
						ToolCalls: calls,
					},
				})
			} else {
				out = append(out, openai.AssistantMessage(msg.Content))
			}
		case agent.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertTools(defs []agent.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, len(defs))
	for i, d := range defs {
		var params shared.FunctionParameters
		if d.ParametersSchema != "" {
			if err := json.Unmarshal([]byte(d.ParametersSchema), &params); err != nil {
				return nil, fmt.Errorf("llm: tool %s schema: %w", d.Name, err)
			}
		}
		out[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  params,
			},
		}
	}
	return out, nil
}
