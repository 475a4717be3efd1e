package pipeline

import "strings"

// MockWarning is shown by the dashboards when no backend is configured.
const MockWarning = "Backend imports not available. UI is running in mock mode."

func mockSources() []interface{} {
	return []interface{}{map[string]interface{}{
		"text":           "Example source…",
		"chunk_id":       "chunk_1",
		"chunk_document": "doc.pdf",
		"chunk_page":     []interface{}{1},
	}}
}

// MockPayloads returns placeholder initial, alternative and critique payloads
// shaped like the output of a field of the given catalog type. Initial and
// alternative are the same payload.
func MockPayloads(fieldType string) (initial, alternative, critique map[string]interface{}) {
	var result map[string]interface{}
	switch strings.ToLower(strings.TrimSpace(fieldType)) {
	case "numeric":
		result = map[string]interface{}{"value": 54000000, "unit": nil, "currency": "EUR"}
	case "table":
		result = map[string]interface{}{
			"columns": []interface{}{"metric", "value"},
			"rows":    []interface{}{[]interface{}{"x", 1}, []interface{}{"y", 2}},
		}
	default:
		result = map[string]interface{}{"text": "Mock text output."}
	}

	base := map[string]interface{}{
		"text_source":    mockSources(),
		"justification":  "Backend not available: showing mock payload.",
		"synonyms_found": []interface{}{"mock", "example"},
		"result_field":   result,
	}
	critique = map[string]interface{}{
		"is_valid":      false,
		"confidence":    0.0,
		"justification": "Backend not available.",
	}
	return base, base, critique
}
