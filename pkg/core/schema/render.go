package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"text/tabwriter"
)

// Table is a rectangular view of a result field.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ResultTable returns the tabular view of a result field: the table itself,
// or a single value/unit/currency row for numeric results. Text results have
// no tabular view.
func ResultTable(resultField map[string]interface{}) (*Table, bool) {
	if resultField == nil {
		return nil, false
	}
	if cols, ok := resultField["columns"]; ok {
		if rows, ok := resultField["rows"]; ok {
			t := &Table{Columns: toStrings(cols)}
			if list, ok := rows.([]interface{}); ok {
				for _, r := range list {
					t.Rows = append(t.Rows, toStrings(r))
				}
			}
			return t, true
		}
	}
	if _, ok := resultField["value"]; ok {
		return &Table{
			Columns: []string{"value", "unit", "currency"},
			Rows: [][]string{{
				cellString(resultField["value"]),
				cellString(resultField["unit"]),
				cellString(resultField["currency"]),
			}},
		}, true
	}
	return nil, false
}

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	firstSentence = regexp.MustCompile(`^(.+?[.!?])(\s|$)`)
)

// FirstSentenceLen is the fallback cut of FirstSentence.
const FirstSentenceLen = 180

// FirstSentence returns the first sentence of text with whitespace collapsed,
// or its first maxLen runes followed by an ellipsis when no sentence ends.
func FirstSentence(text string, maxLen int) string {
	t := spaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
	if t == "" {
		return ""
	}
	if m := firstSentence.FindStringSubmatch(t); m != nil {
		return m[1]
	}
	r := []rune(t)
	if len(r) <= maxLen {
		return t
	}
	return string(r[:maxLen]) + "…"
}

// IsCritique reports whether payload has exactly the critique keys.
func IsCritique(payload map[string]interface{}) bool {
	if len(payload) != 3 {
		return false
	}
	for _, k := range []string{"is_valid", "confidence", "justification"} {
		if _, ok := payload[k]; !ok {
			return false
		}
	}
	return true
}

// AsMap converts a payload given as a map, a JSON string or an output struct
// into its generic form. Unparseable strings are returned under "raw".
func AsMap(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return t
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return map[string]interface{}{"raw": t}
		}
		return m
	default:
		m, err := ToMap(t)
		if err != nil {
			return map[string]interface{}{"raw": fmt.Sprint(t)}
		}
		return m
	}
}

// Render writes a readable report of an extraction, alternative or critique
// payload: the result, the justification, the synonyms and every source.
func Render(w io.Writer, payload interface{}) error {
	data := AsMap(payload)
	r := &reportWriter{w: w}

	if IsCritique(data) {
		r.table("critique", &Table{
			Columns: []string{"is_valid", "confidence"},
			Rows:    [][]string{{cellString(data["is_valid"]), cellString(data["confidence"])}},
		})
		r.text("justification", cellString(data["justification"]))
		return r.err
	}

	switch rf := data["result_field"].(type) {
	case map[string]interface{}:
		if t, ok := ResultTable(rf); ok {
			title := "result_field (numeric)"
			if _, isTable := rf["columns"]; isTable {
				title = "result_field (table)"
			}
			r.table(title, t)
		} else if text, ok := rf["text"]; ok {
			r.text("result_field (text)", cellString(text))
		} else {
			r.table("result_field", mapRow(rf))
		}
	case nil:
	default:
		r.table("result_field", &Table{Columns: []string{"value"}, Rows: [][]string{{cellString(rf)}}})
	}

	if j, ok := data["justification"]; ok {
		r.text("justification", cellString(j))
	}
	if syn, ok := data["synonyms_found"]; ok {
		r.list("synonyms_found", toStrings(syn))
	}
	if sources, ok := data["text_source"].([]interface{}); ok && len(sources) > 0 {
		r.header("text_source")
		for i, s := range sources {
			src, _ := s.(map[string]interface{})
			r.printf("\n[%d] %s | %s | page(s): %s\n%s\n", i+1,
				cellString(src["chunk_document"]), cellString(src["chunk_id"]),
				strings.Join(toStrings(src["chunk_page"]), ", "), cellString(src["text"]))
		}
	}
	return r.err
}

type reportWriter struct {
	w   io.Writer
	err error
}

func (r *reportWriter) printf(format string, args ...interface{}) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *reportWriter) header(title string) {
	r.printf("\n== %s ==\n", title)
}

func (r *reportWriter) text(title, body string) {
	r.header(title)
	r.printf("%s\n", body)
}

func (r *reportWriter) list(title string, items []string) {
	r.header(title)
	for _, it := range items {
		r.printf("- %s\n", it)
	}
}

func (r *reportWriter) table(title string, t *Table) {
	r.header(title)
	if r.err != nil {
		return
	}
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	r.err = tw.Flush()
}

func mapRow(m map[string]interface{}) *Table {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	row := make([]string, len(keys))
	for i, k := range keys {
		row[i] = cellString(m[k])
	}
	return &Table{Columns: keys, Rows: [][]string{row}}
}

func toStrings(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []interface{}:
		out := make([]string, len(t))
		for i, x := range t {
			out[i] = cellString(x)
		}
		return out
	default:
		return []string{cellString(t)}
	}
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
