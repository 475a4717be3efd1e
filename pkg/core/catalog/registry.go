package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrUnknownCompany is returned when a company has no configured indexes.
var ErrUnknownCompany = errors.New("unknown company")

// RetrieveParam is one entry of the retrieval parameter list: the catalog
// field, the subfield it expands into and the similarity query to run.
type RetrieveParam struct {
	FieldID  string `yaml:"fieldId" json:"fieldId" mapstructure:"fieldId"`
	Subfield string `yaml:"subfield" json:"subfield" mapstructure:"subfield"`
	Field    string `yaml:"field" json:"field" mapstructure:"field"`
	Keywords string `yaml:"keywords" json:"keywords" mapstructure:"keywords"`
	TopK     int    `yaml:"top_k,omitempty" json:"top_k,omitempty" mapstructure:"top_k"`
}

// Companies maps a company key to the vector indexes holding its documents.
type Companies map[string][]string

// Names returns the company keys in sorted order.
func (c Companies) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LoadRetrieveParams reads a YAML list of retrieval parameters.
func LoadRetrieveParams(path string) ([]RetrieveParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading retrieve params %s: %w", path, err)
	}
	var params []RetrieveParam
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("parsing retrieve params %s: %w", path, err)
	}
	return params, nil
}

// Row is one retrieval job: a field id searched against one index.
type Row struct {
	Field     string `json:"field"`
	FieldID   string `json:"field_id"`
	IndexName string `json:"index_name"`
	Keywords  string `json:"keywords"`
	TopK      int    `json:"top_k,omitempty"`
}

// FieldEntry is a distinct field of the registry with its catalog type.
type FieldEntry struct {
	Field   string `json:"field"`
	FieldID string `json:"field_id"`
	Type    string `json:"type"`
}

// Registry is the cross product of retrieval parameters and a company's
// indexes, plus the distinct fields it covers.
type Registry struct {
	Company string       `json:"company"`
	Rows    []Row        `json:"rows"`
	Fields  []FieldEntry `json:"fields"`
}

// BuildRegistry expands params against every index of company. Field ids are
// "<fieldId>_<subfield>"; types come from cat, or DefaultFieldType when cat is nil.
func BuildRegistry(company string, params []RetrieveParam, companies Companies, cat *FieldCatalog) (*Registry, error) {
	indexes, ok := companies[company]
	if !ok || len(indexes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompany, company)
	}

	sorted := append([]RetrieveParam(nil), params...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FieldID < sorted[j].FieldID })

	reg := &Registry{Company: company}
	seen := make(map[string]bool)
	for _, p := range sorted {
		fieldID := p.FieldID + "_" + p.Subfield
		for _, idx := range indexes {
			reg.Rows = append(reg.Rows, Row{
				Field:     p.Field,
				FieldID:   fieldID,
				IndexName: idx,
				Keywords:  p.Keywords,
				TopK:      p.TopK,
			})
		}

		key := p.Field + "\x00" + fieldID
		if seen[key] {
			continue
		}
		seen[key] = true
		reg.Fields = append(reg.Fields, FieldEntry{
			Field:   p.Field,
			FieldID: fieldID,
			Type:    cat.TypeOf(p.Field),
		})
	}
	return reg, nil
}

// Filter returns the fields whose name contains query, case-insensitively.
// An empty query returns every field.
func (r *Registry) Filter(query string) []FieldEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return append([]FieldEntry(nil), r.Fields...)
	}
	var out []FieldEntry
	for _, f := range r.Fields {
		if strings.Contains(strings.ToLower(f.Field), q) {
			out = append(out, f)
		}
	}
	return out
}

// Lookup finds a field by its field id.
func (r *Registry) Lookup(fieldID string) (FieldEntry, bool) {
	for _, f := range r.Fields {
		if f.FieldID == fieldID {
			return f, true
		}
	}
	return FieldEntry{}, false
}

// RowsFor returns the retrieval rows of a field id, one per index.
func (r *Registry) RowsFor(fieldID string) []Row {
	var out []Row
	for _, row := range r.Rows {
		if row.FieldID == fieldID {
			out = append(out, row)
		}
	}
	return out
}
