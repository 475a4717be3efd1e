package llm

import (
	"context"
	"fmt"
	"os"
)

const dashScopeURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

type QwenProvider struct {
	URL string
}

type qwenResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		// Some DashScope endpoints return the completion directly.
		Text string `json:"text"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *QwenProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := optString(options, OptAPIKey, os.Getenv("DASHSCOPE_API_KEY"))
	if apiKey == "" {
		apiKey = os.Getenv("QWEN_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("QWEN_API_KEY_MISSING: Please set DASHSCOPE_API_KEY or QWEN_API_KEY")
	}

	parameters := map[string]interface{}{
		"result_format": "message",
		"temperature":   optFloat(options, OptTemperature, DefaultTemperature),
		"top_p":         optFloat(options, OptTopP, DefaultTopP),
		"max_tokens":    optInt(options, OptMaxTokens, DefaultMaxTokens),
	}
	if wantsJSON(options) {
		parameters["response_format"] = map[string]string{"type": "json_object"}
	}
	reqBody := map[string]interface{}{
		"model": optString(options, OptModel, "qwen-max"),
		"input": map[string]interface{}{
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": prompt},
			},
		},
		"parameters": parameters,
	}

	url := p.URL
	if url == "" {
		url = dashScopeURL
	}

	var result qwenResponse
	if err := postJSON(ctx, "QWEN", url, apiKey, reqBody, &result); err != nil {
		return "", err
	}
	if result.Code != "" {
		return "", fmt.Errorf("QWEN_API_ERROR: %s - %s", result.Code, result.Message)
	}
	if len(result.Output.Choices) > 0 {
		return result.Output.Choices[0].Message.Content, nil
	}
	if result.Output.Text != "" {
		return result.Output.Text, nil
	}
	return "", fmt.Errorf("QWEN_EMPTY_RESPONSE: empty response from qwen api")
}

func (p *QwenProvider) AdaptInstructions(raw string) string {
	return raw
}
