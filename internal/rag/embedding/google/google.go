package google

import (
	"context"
	"errors"
	"time"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/rag/embedding"
	"github.com/hqlin/tcm-assistant/pkg/logx"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Client struct {
	genAi  *genai.Client
	model  string
	dim    int32
	logger *logx.Logger
}

func New(ctx context.Context, modelName string, apiKey string) (*Client, error) {
	logger := logx.NewLogger("google_embedding")
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		logger.Error("Error creating Google Embedding client", "error", err)
		return nil, err
	}
	logger.Info("Google Embedding client created", "model", modelName)
	return &Client{
		genAi:  c,
		model:  modelName,
		dim:    config.EmbeddingOutputDimensionality,
		logger: logger,
	}, nil
}

func (c *Client) Dimension() int { return int(c.dim) }

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	result, err := c.genAi.Models.EmbedContent(ctx, c.model, genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &c.dim, TaskType: "RETRIEVAL_QUERY"})
	if err != nil {
		c.logger.Error("Error getting query embedding from Google", "error", err)
		return nil, &embedding.ProviderError{Provider: "google", Err: err}
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, &embedding.ProviderError{Provider: "google", Err: errors.New("empty embedding response")}
	}
	return result.Embeddings[0].Values, nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += config.EmbeddingSubBatch {
		end := start + config.EmbeddingSubBatch
		if end > len(texts) {
			end = len(texts)
		}

		res, err := c.doCall(ctx, texts[start:end])
		if err != nil && isRateLimited(err) {
			c.logger.Warn("Rate limit hit, retrying in 5 seconds", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			res, err = c.doCall(ctx, texts[start:end])
		}
		if err != nil {
			c.logger.Error("Error getting batch embeddings from Google", "error", err)
			return nil, &embedding.ProviderError{Provider: "google", Err: err}
		}
		if len(res.Embeddings) != end-start {
			return nil, &embedding.ProviderError{Provider: "google",
				Err: errors.New("embedding count does not match input count")}
		}
		for _, r := range res.Embeddings {
			results = append(results, r.Values)
		}
	}
	return results, nil
}

func (c *Client) doCall(ctx context.Context, texts []string) (*genai.EmbedContentResponse, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: t}},
		})
	}
	return c.genAi.Models.EmbedContent(ctx, c.model, contents,
		&genai.EmbedContentConfig{OutputDimensionality: &c.dim, TaskType: "RETRIEVAL_DOCUMENT"})
}

func isRateLimited(err error) bool {
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.ResourceExhausted
	}
	return false
}
