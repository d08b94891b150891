// Package deepseek talks to the DeepSeek chat API through its
// OpenAI-compatible endpoint.
package deepseek

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/rag/llm"
	"github.com/hqlin/tcm-assistant/pkg/logx"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type Client struct {
	client openai.Client
	model  string
	logger *logx.Logger
}

func New(apiKey string, httpClient *http.Client) *Client {
	logger := logx.NewLogger("llm_deepseek")
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(config.DeepSeekBaseURL),
		option.WithHTTPClient(httpClient),
	)
	logger.Info("DeepSeek client created", "model", config.DeepSeekModelName)
	return &Client{client: client, model: config.DeepSeekModelName, logger: logger}
}

func (c *Client) Chat(ctx context.Context, system string, msgs []llm.Message, tools []llm.ToolSpec) (llm.Reply, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	messages = append(messages, openai.SystemMessage(system))

	for _, m := range msgs {
		converted, err := toParams(m)
		if err != nil {
			return llm.Reply{}, err
		}
		messages = append(messages, converted...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(toDefinition(t)))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Error("Error calling DeepSeek", "error", err)
		return llm.Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Reply{}, fmt.Errorf("deepseek returned no choices")
	}

	msg := resp.Choices[0].Message
	reply := llm.Reply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, llm.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	return reply, nil
}

// toParams maps one neutral message onto the wire params. A tool-result
// message fans out into one tool message per result.
func toParams(m llm.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleUser:
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(m.Content)}, nil
	case llm.RoleAssistant:
		if len(m.ToolCalls) == 0 {
			return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(m.Content)}, nil
		}
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			assistant.Content.OfString = openai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Input,
					},
				},
			})
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}, nil
	case llm.RoleTool:
		out := make([]openai.ChatCompletionMessageParamUnion, 0, len(m.ToolResults))
		for _, tr := range m.ToolResults {
			out = append(out, openai.ToolMessage(tr.Output, tr.CallID))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown message role: %s", m.Role)
	}
}

func toDefinition(t llm.ToolSpec) openai.FunctionDefinitionParam {
	def := openai.FunctionDefinitionParam{
		Name:        t.Name,
		Description: openai.String(t.Description),
	}
	if t.ParamName != "" {
		def.Parameters = openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				t.ParamName: map[string]any{
					"type":        "string",
					"description": t.ParamDesc,
				},
			},
			"required": []string{t.ParamName},
		}
	}
	return def
}
