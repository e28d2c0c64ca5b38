// Package langchain adapts langchaingo chat models to the llm.Provider interface
// so the assistant can run against Anthropic or a local Ollama server.
package langchain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/user/wayfarer/pkg/llm"
)

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Model wraps a langchaingo model.
type Model struct {
	model  llms.Model
	config *llm.Config
}

// New creates a Model for the named provider. For ollama, config.BaseURL is
// the server URL.
func New(provider string, config *llm.Config) (*Model, error) {
	var (
		model llms.Model
		err   error
	)

	switch provider {
	case ProviderAnthropic:
		if config.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(config.APIKey),
			anthropic.WithModel(config.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}

	return &Model{model: model, config: config}, nil
}

// Wrap adapts an existing langchaingo model.
func Wrap(model llms.Model, config *llm.Config) *Model {
	return &Model{model: model, config: config}
}

func (m *Model) callOptions(tools []llm.Tool) ([]llms.CallOption, error) {
	var opts []llms.CallOption
	if m.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.config.MaxTokens))
	}
	if m.config.Temperature != 0 {
		opts = append(opts, llms.WithTemperature(float64(m.config.Temperature)))
	}
	if len(tools) > 0 {
		converted, err := convertTools(tools)
		if err != nil {
			return nil, err
		}
		opts = append(opts, llms.WithTools(converted))
	}
	return opts, nil
}

// Complete sends a chat completion request and returns the full response.
func (m *Model) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	opts, err := m.callOptions(tools)
	if err != nil {
		return nil, err
	}

	resp, err := m.model.GenerateContent(ctx, convertMessages(messages), opts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}
	return convertChoice(resp.Choices[0]), nil
}

// Stream runs GenerateContent with a streaming callback and forwards each
// chunk as a Delta.
func (m *Model) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.Delta, error) {
	opts, err := m.callOptions(tools)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Delta)
	opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		select {
		case ch <- llm.Delta{Content: string(chunk)}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))

	go func() {
		defer close(ch)
		resp, err := m.model.GenerateContent(ctx, convertMessages(messages), opts...)
		if err != nil {
			select {
			case ch <- llm.Delta{Err: fmt.Errorf("generate content: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
		if len(resp.Choices) > 0 && len(resp.Choices[0].ToolCalls) > 0 {
			select {
			case ch <- llm.Delta{ToolCalls: convertChoice(resp.Choices[0]).ToolCalls}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func convertMessages(messages []llm.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case llm.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case llm.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: msg.Content})
			}
			for _, tc := range msg.Tools {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, mc)
		case llm.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		}
	}
	return out
}

func convertTools(tools []llm.Tool) ([]llms.Tool, error) {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &params); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", t.Function.Name, err)
			}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func convertChoice(c *llms.ContentChoice) *llm.Response {
	resp := &llm.Response{Content: c.Content}
	for _, tc := range c.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			},
		})
	}
	return resp
}
