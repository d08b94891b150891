package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hqlin/tcm-assistant/internal/rag/llm"
	"github.com/hqlin/tcm-assistant/pkg/logx"
	"google.golang.org/genai"
)

type Client struct {
	client    *genai.Client
	modelName string
	logger    *logx.Logger
}

func New(ctx context.Context, modelName string, apiKey string) (*Client, error) {
	logger := logx.NewLogger("llm_gemini")
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		logger.Error("Error creating Gemini client", "error", err)
		return nil, err
	}
	logger.Info("Gemini client created", "model", modelName)
	return &Client{client: c, modelName: modelName, logger: logger}, nil
}

func (c *Client) Chat(ctx context.Context, system string, msgs []llm.Message, tools []llm.ToolSpec) (llm.Reply, error) {
	contents, err := toContents(msgs)
	if err != nil {
		return llm.Reply{}, err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
	}
	if len(tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(tools)}}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		c.logger.Error("Error generating content", "error", err)
		return llm.Reply{}, err
	}

	reply := llm.Reply{Text: result.Text()}
	for _, fc := range result.FunctionCalls() {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return llm.Reply{}, fmt.Errorf("encoding function call args: %w", err)
		}
		reply.ToolCalls = append(reply.ToolCalls, llm.ToolCall{
			ID:    fc.ID,
			Name:  fc.Name,
			Input: string(args),
		})
	}
	return reply, nil
}

func toContents(msgs []llm.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case llm.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if tc.Input != "" {
					if err := json.Unmarshal([]byte(tc.Input), &args); err != nil {
						return nil, fmt.Errorf("decoding tool call args: %w", err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case llm.RoleTool:
			parts := make([]*genai.Part, 0, len(m.ToolResults))
			for _, tr := range m.ToolResults {
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       tr.CallID,
						Name:     tr.Name,
						Response: map[string]any{"output": tr.Output},
					},
				})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
		default:
			return nil, fmt.Errorf("unknown message role: %s", m.Role)
		}
	}
	return contents, nil
}

func toDeclarations(tools []llm.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		if t.ParamName != "" {
			decl.Parameters = &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					t.ParamName: {Type: genai.TypeString, Description: t.ParamDesc},
				},
				Required: []string{t.ParamName},
			}
		}
		decls = append(decls, decl)
	}
	return decls
}
