package openaiembed

import (
	"context"
	"errors"
	"net/http"

	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/rag/embedding"
	"github.com/hqlin/tcm-assistant/pkg/logx"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type Client struct {
	client openai.Client
	model  string
	dim    int
	logger *logx.Logger
}

func New(apiKey string, httpClient *http.Client) *Client {
	logger := logx.NewLogger("openai_embedding")
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	)
	logger.Info("OpenAI embedding client created", "model", config.OpenAIEmbeddingModel)
	return &Client{
		client: client,
		model:  config.OpenAIEmbeddingModel,
		dim:    int(config.EmbeddingOutputDimensionality),
		logger: logger,
	}
}

func (c *Client) Dimension() int { return c.dim }

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += config.EmbeddingSubBatch {
		end := start + config.EmbeddingSubBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model:      openai.EmbeddingModel(c.model),
			Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Dimensions: openai.Int(int64(c.dim)),
		})
		if err != nil {
			c.logger.Error("Error getting embeddings from OpenAI", "error", err)
			return nil, &embedding.ProviderError{Provider: "openai", Err: err}
		}
		if len(resp.Data) != len(batch) {
			return nil, &embedding.ProviderError{Provider: "openai",
				Err: errors.New("embedding count does not match input count")}
		}

		// the API reports an index per item; place by it rather than
		// trusting response order
		ordered := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(batch) {
				return nil, &embedding.ProviderError{Provider: "openai",
					Err: errors.New("embedding index out of range")}
			}
			vec := make([]float32, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float32(v)
			}
			ordered[d.Index] = vec
		}
		results = append(results, ordered...)
	}
	return results, nil
}
