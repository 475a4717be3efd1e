package utils

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// NormalizeYAML converts the generic values produced by yaml.v2
// (map[interface{}]interface{} and yaml.MapSlice) into map[string]interface{}
// so they can be JSON encoded and indexed by string keys in templates. An
// empty value ("key:" with nothing after it) becomes "" so templates print
// nothing instead of "<no value>".
func NormalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return ""
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = NormalizeYAML(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = NormalizeYAML(val)
		}
		return out
	case yaml.MapSlice:
		out := make(map[string]interface{}, len(t))
		for _, item := range t {
			out[fmt.Sprint(item.Key)] = NormalizeYAML(item.Value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = NormalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

// UnmarshalYAMLMap decodes a YAML document whose root must be a mapping.
// An empty document yields an empty map.
func UnmarshalYAMLMap(data []byte) (map[string]interface{}, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := NormalizeYAML(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("yaml root is %T, expected a mapping", raw)
	}
	return m, nil
}
