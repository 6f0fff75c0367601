package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-smart-go/internal/config"
)

func embeddingServer(t *testing.T, vector []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		resp := map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vector}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestCreateEmbedding(t *testing.T) {
	srv := embeddingServer(t, []float32{0.1, 0.2, 0.3})
	defer srv.Close()

	client := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Dimensions: 3})
	vector, err := client.CreateEmbedding(context.Background(), "wooden chair")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestCreateEmbeddingDimensionMismatchIsHardError(t *testing.T) {
	// 配置期望 4 维，服务端只给 3 维：必须报错，绝不静默截断或补零
	srv := embeddingServer(t, []float32{0.1, 0.2, 0.3})
	defer srv.Close()

	client := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Dimensions: 4})
	_, err := client.CreateEmbedding(context.Background(), "wooden chair")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestCreateEmbeddingEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	client := NewClient(config.EmbeddingConfig{BaseURL: srv.URL})
	_, err := client.CreateEmbedding(context.Background(), "x")
	assert.Error(t, err)
}

func TestCreateEmbeddingNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(config.EmbeddingConfig{BaseURL: srv.URL})
	_, err := client.CreateEmbedding(context.Background(), "x")
	assert.Error(t, err)
}
