package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"course-rag/internal/config"
)

const defaultSiliconFlowURL = "https://api.siliconflow.cn/v1"

// SiliconFlowEmbedder calls the SiliconFlow embeddings API, which speaks the
// OpenAI wire format and honours an explicit output dimension.
type SiliconFlowEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewSiliconFlowEmbedder(cfg *config.EmbeddingConfig) (*SiliconFlowEmbedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("siliconflow embedder requires a model")
	}
	clientConfig := openai.DefaultConfig(cfg.Key)
	clientConfig.BaseURL = defaultSiliconFlowURL
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &SiliconFlowEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (e *SiliconFlowEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *SiliconFlowEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		vectors[idx] = data.Embedding
	}
	return vectors, nil
}
