package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls the chat completions endpoint. A json_schema option is
// sent as a strict structured output response format.
type OpenAIProvider struct {
	BaseURL string
	APIKey  string
	Model   string
}

var _ Provider = (*OpenAIProvider)(nil)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p"`
	MaxTokens      int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat interface{}     `json:"response_format,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := optString(options, OptAPIKey, p.apiKey())
	if apiKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY_MISSING: Please set OPENAI_API_KEY env var")
	}

	reqBody := openAIChatRequest{
		Model:       optString(options, OptModel, p.model()),
		Temperature: optFloat(options, OptTemperature, DefaultTemperature),
		TopP:        optFloat(options, OptTopP, DefaultTopP),
		MaxTokens:   optInt(options, OptMaxTokens, DefaultMaxTokens),
	}
	if systemPrompt != "" {
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "system", Content: systemPrompt})
	}
	reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "user", Content: prompt})

	if schema, ok := options[OptJSONSchema]; ok {
		reqBody.ResponseFormat = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   optString(options, OptSchemaName, "output"),
				"schema": schema,
				"strict": false,
			},
		}
	} else if wantsJSON(options) {
		reqBody.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var resp openAIChatResponse
	if err := p.post(ctx, apiKey, "/chat/completions", reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OPENAI_NO_CHOICES: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) AdaptInstructions(raw string) string {
	return raw
}

func (p *OpenAIProvider) apiKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (p *OpenAIProvider) model() string {
	if p.Model != "" {
		return p.Model
	}
	return DefaultChatModel
}

func (p *OpenAIProvider) post(ctx context.Context, apiKey, path string, in, out interface{}) error {
	base := p.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	return postJSON(ctx, "OPENAI", base+path, apiKey, in, out)
}

// OpenAIEmbedder calls the embeddings endpoint.
type OpenAIEmbedder struct {
	BaseURL string
	APIKey  string
	Model   string
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	p := &OpenAIProvider{BaseURL: e.BaseURL, APIKey: e.APIKey}
	apiKey := p.apiKey()
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY_MISSING: Please set OPENAI_API_KEY env var")
	}

	var resp openAIEmbeddingResponse
	if err := p.post(ctx, apiKey, "/embeddings", openAIEmbeddingRequest{Model: e.Name(), Input: texts}, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("OPENAI_EMBEDDING_MISSING: no vector for input %d", i)
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// Name returns the embedding model.
func (e *OpenAIEmbedder) Name() string {
	if e.Model != "" {
		return e.Model
	}
	return DefaultEmbeddingModel
}

func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("EMBEDDING_EMPTY: no vector returned")
	}
	return vecs[0], nil
}

// postJSON sends in as JSON with a bearer token and decodes a 200 response
// into out. Error codes are prefixed with tag.
func postJSON(ctx context.Context, tag, url, apiKey string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s_MARSHAL_ERROR: %w", tag, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s_REQ_CREATE_ERROR: %w", tag, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s_API_CALL_ERROR: %w", tag, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%s_READ_BODY_ERROR: %w", tag, err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s_API_ERROR: status=%d body=%s", tag, res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s_UNMARSHAL_ERROR: %w", tag, err)
	}
	return nil
}
