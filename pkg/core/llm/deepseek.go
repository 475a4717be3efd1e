package llm

import (
	"context"
	"fmt"
	"os"
)

const deepSeekURL = "https://api.deepseek.com/chat/completions"

type DeepSeekProvider struct {
	URL string
}

type deepSeekRequest struct {
	Messages       []openAIMessage `json:"messages"`
	Model          string          `json:"model"`
	Thinking       *thinkingParam  `json:"thinking,omitempty"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat responseFormat  `json:"response_format"`
	Stream         bool            `json:"stream"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p"`
}

type thinkingParam struct {
	Type string `json:"type"`
}

type responseFormat struct {
	Type string `json:"type"`
}

func (p *DeepSeekProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := optString(options, OptAPIKey, os.Getenv("DEEPSEEK_API_KEY"))
	if apiKey == "" {
		return "", fmt.Errorf("DEEPSEEK_API_KEY_MISSING: Please set DEEPSEEK_API_KEY env var")
	}

	reqBody := deepSeekRequest{
		Messages: []openAIMessage{
			{Content: systemPrompt, Role: "system"},
			{Content: prompt, Role: "user"},
		},
		Model:          optString(options, OptModel, "deepseek-chat"),
		Thinking:       &thinkingParam{Type: "disabled"},
		MaxTokens:      optInt(options, OptMaxTokens, DefaultMaxTokens),
		ResponseFormat: responseFormat{Type: "text"},
		Temperature:    optFloat(options, OptTemperature, DefaultTemperature),
		TopP:           optFloat(options, OptTopP, DefaultTopP),
	}
	if wantsJSON(options) {
		reqBody.ResponseFormat.Type = "json_object"
	}

	url := p.URL
	if url == "" {
		url = deepSeekURL
	}

	var response openAIChatResponse
	if err := postJSON(ctx, "DEEPSEEK", url, apiKey, reqBody, &response); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("DEEPSEEK_NO_CHOICES: empty choices")
	}
	return response.Choices[0].Message.Content, nil
}

func (p *DeepSeekProvider) AdaptInstructions(raw string) string {
	return raw
}
