package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-rag/internal/config"
	"course-rag/internal/models"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(512)

	t.Run("deterministic and normalized", func(t *testing.T) {
		a, err := e.EmbedQuery(ctx, "Introduction to Widgets")
		require.NoError(t, err)
		b, err := e.EmbedQuery(ctx, "Introduction to Widgets")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 512)
		assert.InDelta(t, 1.0, cosine(a, a), 1e-5)
	})

	t.Run("empty text is a unit vector", func(t *testing.T) {
		v, err := e.EmbedQuery(ctx, "  the  ")
		require.NoError(t, err)
		assert.Equal(t, float32(1), v[0])
	})

	t.Run("similar titles are close", func(t *testing.T) {
		docs, err := e.EmbedDocuments(ctx, []string{"Introduction to Widgets", "Quantum Chromodynamics"})
		require.NoError(t, err)
		q, err := e.EmbedQuery(ctx, "Intro to Widgets")
		require.NoError(t, err)

		near := cosine(q, docs[0])
		far := cosine(q, docs[1])
		assert.Greater(t, near, 0.5)
		assert.Less(t, far, 0.3)
	})
}

func TestNew(t *testing.T) {
	t.Run("hash", func(t *testing.T) {
		e, err := New(&config.EmbeddingConfig{Provider: "hash"})
		require.NoError(t, err)
		h, ok := e.(*HashEmbedder)
		require.True(t, ok)
		assert.Equal(t, defaultHashDimensions, h.Dimensions())
	})

	t.Run("ollama", func(t *testing.T) {
		e, err := New(&config.EmbeddingConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "all-minilm"})
		require.NoError(t, err)
		assert.NotNil(t, e)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := New(&config.EmbeddingConfig{Provider: "word2vec"})
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}

func TestSiliconFlowEmbedder(t *testing.T) {
	var got struct {
		Input      []string `json:"input"`
		Model      string   `json:"model"`
		Dimensions int      `json:"dimensions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"bge-m3","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	e, err := NewSiliconFlowEmbedder(&config.EmbeddingConfig{
		BaseURL:    srv.URL,
		Model:      "bge-m3",
		Key:        "secret",
		Dimensions: 2,
	})
	require.NoError(t, err)

	vectors, err := e.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	assert.Equal(t, []string{"first", "second"}, got.Input)
	assert.Equal(t, "bge-m3", got.Model)
	assert.Equal(t, 2, got.Dimensions)

	_, err = NewSiliconFlowEmbedder(&config.EmbeddingConfig{})
	assert.Error(t, err)
}
