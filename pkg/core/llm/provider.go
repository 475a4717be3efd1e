package llm

import (
	"context"
	"net/http"
	"time"
)

// Provider is the interface for all chat LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
	// AdaptInstructions transforms raw instructions into model-specific formats
	AdaptInstructions(rawInstructions string) string
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Option keys understood by the providers.
const (
	OptModel          = "model"
	OptAPIKey         = "api_key"
	OptTemperature    = "temperature"
	OptTopP           = "top_p"
	OptMaxTokens      = "max_tokens"
	OptResponseFormat = "response_format"
	OptJSONSchema     = "json_schema"
	OptSchemaName     = "schema_name"
)

// Generation defaults shared by the extraction chains.
const (
	DefaultChatModel      = "gpt-5.2"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTemperature    = 0.0
	DefaultTopP           = 1.0
	DefaultMaxTokens      = 3000
)

var httpClient = &http.Client{Timeout: 180 * time.Second}

func optString(options map[string]interface{}, key, def string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optFloat(options map[string]interface{}, key string, def float64) float64 {
	switch v := options[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

func optInt(options map[string]interface{}, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// wantsJSON reports whether the caller asked for a JSON object answer.
func wantsJSON(options map[string]interface{}) bool {
	if _, ok := options[OptJSONSchema]; ok {
		return true
	}
	switch v := options[OptResponseFormat].(type) {
	case string:
		return v == "json_object" || v == "json"
	case map[string]interface{}:
		return v["type"] == "json_object"
	}
	return false
}
