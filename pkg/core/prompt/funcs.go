package prompt

import (
	"fmt"
	"reflect"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v2"
)

// funcMap returns the helpers available to every template. include is bound
// to o so that partials resolve against the same templates FS.
func (o *Orchestrator) funcMap() template.FuncMap {
	return template.FuncMap{
		"include": o.include,
		"default": defaultValue,
		"get":     get,
		"has":     has,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"title":   title,
		"trim":    strings.TrimSpace,
		"join":    join,
		"indent":  indent,
		"toYAML":  toYAML,
		"oneOf":   oneOf,
	}
}

// include renders another template with the given data, e.g.
// {{ include "common/output_contract" . }}.
func (o *Orchestrator) include(name string, data interface{}) (string, error) {
	vars, _ := data.(map[string]interface{})
	return o.render(name, vars)
}

// defaultValue is used as {{ .x | default "fallback" }}; it only replaces
// empty values, a missing key still fails the render.
func defaultValue(def, val interface{}) interface{} {
	if isEmpty(val) {
		return def
	}
	return val
}

// get reads an optional key without failing on absence.
func get(m map[string]interface{}, key string) interface{} {
	if m == nil {
		return nil
	}
	return m[key]
}

func has(key string, m map[string]interface{}) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// title upper-cases the first rune.
func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func join(sep string, v interface{}) string {
	rv := reflect.ValueOf(v)
	if v == nil {
		return ""
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Sprint(v)
	}
	parts := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts[i] = fmt.Sprint(rv.Index(i).Interface())
	}
	return strings.Join(parts, sep)
}

func indent(n int, s string) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

func toYAML(v interface{}) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func oneOf(v interface{}, options ...interface{}) bool {
	for _, o := range options {
		if fmt.Sprint(v) == fmt.Sprint(o) {
			return true
		}
	}
	return false
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
