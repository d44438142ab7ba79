package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), []string{"Paris is the capital of France", "Paris is the capital of France"})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, a[0], a[1])

	var sum float32
	for _, x := range a[0] {
		sum += x * x
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	out, err := NewHashEmbedder(8).Embed(context.Background(), []string{"   "})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), out[0])
}

func TestOpenAIEmbedderBatches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body struct {
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(body.Input))
		for i := range body.Input {
			data[i] = item{Index: i, Embedding: []float32{float32(len(body.Input[i])), 1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(Config{BaseURL: srv.URL + "/v1", APIKey: "key", Model: "m"}, 2)
	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(3), vecs[2][0])
}

func TestOpenAIClientFailureIsCapabilityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClient(Config{BaseURL: srv.URL, Model: "m"})
	_, err := client.Complete(context.Background(), "sys", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalCapability)

	_, err = NewOpenAIEmbedder(Config{BaseURL: srv.URL, Model: "m"}, 0).Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrExternalCapability)
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body struct {
			Messages []ChatMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"query\":\"x\"}"}}]}`))
	}))
	defer srv.Close()

	out, err := NewOpenAICompatibleClient(Config{BaseURL: srv.URL, Model: "m"}).Complete(context.Background(), "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, `{"query":"x"}`, out)
}
