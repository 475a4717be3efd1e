package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderStructuredOutput(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"is_valid\": true}"}}]}`))
	}))
	defer srv.Close()

	p := &OpenAIProvider{BaseURL: srv.URL, APIKey: "test-key"}
	out, err := p.GenerateResponse(context.Background(), "user text", "system text", map[string]interface{}{
		OptJSONSchema: map[string]interface{}{"type": "object"},
		OptSchemaName: "critique",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"is_valid": true}`, out)

	assert.Equal(t, DefaultChatModel, got["model"])
	assert.Equal(t, 0.0, got["temperature"])
	assert.Equal(t, 1.0, got["top_p"])
	assert.Equal(t, float64(DefaultMaxTokens), got["max_completion_tokens"])
	messages := got["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	format := got["response_format"].(map[string]interface{})
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "critique", format["json_schema"].(map[string]interface{})["name"])
}

func TestOpenAIProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := &OpenAIProvider{BaseURL: srv.URL, APIKey: "k"}
	_, err := p.GenerateResponse(context.Background(), "x", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_ERROR: status=429")

	t.Setenv("OPENAI_API_KEY", "")
	_, err = (&OpenAIProvider{BaseURL: srv.URL}).GenerateResponse(context.Background(), "x", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY_MISSING")
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultEmbeddingModel, req.Model)
		_, _ = w.Write([]byte(`{"data": [{"index": 1, "embedding": [0, 1]}, {"index": 0, "embedding": [1, 0]}]}`))
	}))
	defer srv.Close()

	e := &OpenAIEmbedder{BaseURL: srv.URL, APIKey: "k"}
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestDeepSeekJSONMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req deepSeekRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{}"}}]}`))
	}))
	defer srv.Close()

	p := &DeepSeekProvider{URL: srv.URL}
	out, err := p.GenerateResponse(context.Background(), "x", "answer in json", map[string]interface{}{
		OptAPIKey:         "k",
		OptResponseFormat: "json_object",
	})
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestQwenErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": "InvalidParameter", "message": "bad model"}`))
	}))
	defer srv.Close()

	_, err := (&QwenProvider{URL: srv.URL}).GenerateResponse(context.Background(), "x", "", map[string]interface{}{OptAPIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidParameter")
}

type countingEmbedder struct {
	calls int32
	texts []string
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&c.calls, 1)
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, c, text)
}

func (c *countingEmbedder) Name() string { return "counting" }

func TestCachedEmbedderLocal(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCachedEmbedder(inner, nil, CacheConfig{Size: 8}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	vecs, err := c.Embed(ctx, []string{"aa", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {3}}, vecs)

	vecs, err = c.Embed(ctx, []string{"bbb", "c", "aa"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}, {1}, {2}}, vecs)
	assert.Equal(t, []string{"aa", "bbb", "c"}, inner.texts)

	v, err := c.EmbedSingle(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
	assert.EqualValues(t, 2, atomic.LoadInt32(&inner.calls))
	assert.Equal(t, "counting", c.Name())
}

func TestOptionHelpers(t *testing.T) {
	opts := map[string]interface{}{"a": "x", "f": 2, "i": 3.0, "rf": map[string]interface{}{"type": "json_object"}}
	assert.Equal(t, "x", optString(opts, "a", "d"))
	assert.Equal(t, "d", optString(opts, "missing", "d"))
	assert.Equal(t, 2.0, optFloat(opts, "f", 0))
	assert.Equal(t, 3, optInt(opts, "i", 0))
	assert.True(t, wantsJSON(map[string]interface{}{OptResponseFormat: opts["rf"]}))
	assert.False(t, wantsJSON(nil))
	assert.True(t, strings.HasPrefix(DefaultChatModel, "gpt"))
}
