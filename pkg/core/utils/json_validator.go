package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// StripCodeFence removes an outer ```json (or bare ```) fence that models
// often wrap around their JSON answers.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}

// RepairJSON fixes common defects of model output: unquoted keys, single
// quotes, trailing commas, unclosed brackets and surrounding prose.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %w", err)
	}
	return repaired, nil
}

// ParseHJSON reads Hjson (comments, unquoted strings, optional commas) and
// returns the equivalent standard JSON.
func ParseHJSON(data string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(data), &result); err != nil {
		return "", fmt.Errorf("HJSON_PARSE_ERROR: %w", err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("JSON_MARSHAL_ERROR: %w", err)
	}
	return string(out), nil
}

// SmartParse decodes model output into target, trying in order the raw text,
// the text without code fences, the repaired text and finally Hjson. It returns
// the JSON that was decoded.
func SmartParse(input string, target interface{}) (string, error) {
	for _, candidate := range candidates(input) {
		if !json.Valid([]byte(candidate)) {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), target); err != nil {
			return "", fmt.Errorf("JSON_DECODE_ERROR: %w", err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("SMART_PARSE_FAILED: all parsing strategies failed for input")
}

func candidates(input string) []string {
	out := []string{input}
	stripped := StripCodeFence(input)
	if stripped != input {
		out = append(out, stripped)
	}
	if repaired, err := RepairJSON(stripped); err == nil && repaired != "" {
		out = append(out, repaired)
	}
	if h, err := ParseHJSON(stripped); err == nil {
		out = append(out, h)
	}
	return out
}
