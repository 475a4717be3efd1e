// Package catalog loads the YAML field and question definitions, the Excel
// field catalog and the per-company retrieval registry.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"rating_calculator/pkg/core/utils"
)

// Well-known definition keys.
const (
	KeyFieldType         = "field_type"
	KeyFieldName         = "field_name"
	KeyRetrievalKeywords = "retrieval_keywords"
	KeyPremises          = "premises"
)

// Definition is a parsed field or question YAML document. Data holds the
// template variables; key order of the source document is preserved for the
// top level and for premises.
type Definition struct {
	Name string
	Data map[string]interface{}

	keys         []string
	premiseOrder []string
}

// ParseDefinition decodes a YAML mapping into a Definition named name.
func ParseDefinition(name string, data []byte) (*Definition, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing definition %s: %w", name, err)
	}

	d := &Definition{Name: name, Data: make(map[string]interface{}, len(doc))}
	for _, item := range doc {
		key := fmt.Sprint(item.Key)
		d.keys = append(d.keys, key)
		d.Data[key] = utils.NormalizeYAML(item.Value)

		if key == KeyPremises {
			if premises, ok := item.Value.(yaml.MapSlice); ok {
				for _, p := range premises {
					d.premiseOrder = append(d.premiseOrder, fmt.Sprint(p.Key))
				}
			}
		}
	}
	return d, nil
}

// NewDefinition wraps an in-memory mapping. Keys and premises are ordered
// alphabetically since the source order is unknown.
func NewDefinition(name string, data map[string]interface{}) *Definition {
	normalized, _ := utils.NormalizeYAML(data).(map[string]interface{})
	if normalized == nil {
		normalized = map[string]interface{}{}
	}
	d := &Definition{Name: name, Data: normalized}
	for k := range normalized {
		d.keys = append(d.keys, k)
	}
	sort.Strings(d.keys)
	if premises, ok := normalized[KeyPremises].(map[string]interface{}); ok {
		for id := range premises {
			d.premiseOrder = append(d.premiseOrder, id)
		}
		sort.Strings(d.premiseOrder)
	}
	return d
}

// Keys returns the top-level keys in document order.
func (d *Definition) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Vars returns a copy of the top-level mapping, ready to be extended with
// render flags without touching the cached definition.
func (d *Definition) Vars() map[string]interface{} {
	out := make(map[string]interface{}, len(d.Data)+8)
	for k, v := range d.Data {
		out[k] = v
	}
	return out
}

// String returns the value at key formatted as a string, or "" when absent.
func (d *Definition) String(key string) string {
	v, ok := d.Data[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// FieldType returns the "field_type" entry (quantitative or qualitative).
func (d *Definition) FieldType() string {
	return strings.TrimSpace(d.String(KeyFieldType))
}

// DisplayName returns field_name when present and the file stem otherwise.
func (d *Definition) DisplayName() string {
	if n := d.String(KeyFieldName); n != "" {
		return n
	}
	return d.Name
}

// RetrievalKeywords returns the similarity-search query of a field. A list of
// keywords is joined with spaces.
func (d *Definition) RetrievalKeywords() string {
	switch v := d.Data[KeyRetrievalKeywords].(type) {
	case nil:
		return ""
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

// Premises returns the premises mapping. ok is false when the entry exists
// but is not a mapping; a missing entry yields an empty mapping.
func (d *Definition) Premises() (premises map[string]interface{}, ok bool) {
	raw, exists := d.Data[KeyPremises]
	if !exists || raw == nil || raw == "" {
		return map[string]interface{}{}, true
	}
	premises, ok = raw.(map[string]interface{})
	return premises, ok
}

// PremiseIDs returns the premise identifiers in document order.
func (d *Definition) PremiseIDs() []string {
	return append([]string(nil), d.premiseOrder...)
}
