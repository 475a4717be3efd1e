package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"rating_calculator/pkg/core/utils"
)

var (
	// ErrDecode is returned when model output cannot be read as JSON.
	ErrDecode = errors.New("cannot decode model output")
	// ErrValidation is returned when decoded output breaks a schema constraint.
	ErrValidation = errors.New("schema validation failed")
)

// Kind is the shape of an extraction result.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindTable   Kind = "table"
	KindString  Kind = "string"
)

// KindFor maps a catalog type (Numeric, Table, String) to a Kind. Anything
// else is a string.
func KindFor(fieldType string) Kind {
	switch strings.ToLower(strings.TrimSpace(fieldType)) {
	case "numeric":
		return KindNumeric
	case "table":
		return KindTable
	default:
		return KindString
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(validateTable, TableField{})
	})
	return validate
}

func validateTable(sl validator.StructLevel) {
	t := sl.Current().Interface().(TableField)
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			sl.ReportError(t.Rows, fmt.Sprintf("Rows[%d]", i), "Rows", "rowlen", fmt.Sprint(len(t.Columns)))
		}
	}
}

// Normalizer is implemented by outputs that fix themselves up after decoding.
type Normalizer interface {
	Normalize()
}

// Validate checks v against its struct constraints.
func Validate(v interface{}) error {
	if err := validatorInstance().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// Parse decodes lenient model output into T, normalizes and validates it.
func Parse[T any](raw string) (*T, error) {
	out := new(T)
	if err := decodeInto(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInto(raw string, out interface{}) error {
	decoded, err := utils.SmartParse(raw, out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := checkRequired(decoded, out); err != nil {
		return err
	}
	if n, ok := out.(Normalizer); ok {
		n.Normalize()
	}
	return Validate(out)
}

// NewExtraction returns an empty extraction output for kind.
func NewExtraction(kind Kind) interface{} {
	switch kind {
	case KindNumeric:
		return &OutputNumericField{}
	case KindTable:
		return &OutputTableField{}
	default:
		return &OutputStringField{}
	}
}

// NewAlternative returns an empty alternative output for kind.
func NewAlternative(kind Kind) interface{} {
	switch kind {
	case KindNumeric:
		return &AlternativeExtractionNumericField{}
	case KindTable:
		return &AlternativeExtractionTableField{}
	default:
		return &AlternativeExtractionStringField{}
	}
}

// ParseExtraction decodes the extraction output of a field of the given kind.
func ParseExtraction(kind Kind, raw string) (interface{}, error) {
	out := NewExtraction(kind)
	if err := decodeInto(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseAlternative decodes the alternative output of a field of the given kind.
func ParseAlternative(kind Kind, raw string) (interface{}, error) {
	out := NewAlternative(kind)
	if err := decodeInto(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseCritique decodes a critique verdict.
func ParseCritique(raw string) (*OutputSchemaCritic, error) {
	return Parse[OutputSchemaCritic](raw)
}

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// schemas caches the reflected schema of each output type.
var schemas sync.Map

func schemaOf(v interface{}) *jsonschema.Schema {
	t := reflect.TypeOf(v)
	if s, ok := schemas.Load(t); ok {
		return s.(*jsonschema.Schema)
	}
	s, _ := schemas.LoadOrStore(t, reflector.Reflect(v))
	return s.(*jsonschema.Schema)
}

// checkRequired reports the first key the JSON schema of out requires but the
// decoded document leaves out or sets to null. Struct decoding alone cannot
// tell a missing "value" or "is_valid" from a real 0 or false.
func checkRequired(decoded string, out interface{}) error {
	var doc interface{}
	if err := json.Unmarshal([]byte(decoded), &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if path := missingKey(schemaOf(out), doc, ""); path != "" {
		return fmt.Errorf("%w: missing required key %q", ErrValidation, path)
	}
	return nil
}

func missingKey(s *jsonschema.Schema, v interface{}, path string) string {
	if s == nil || v == nil {
		return ""
	}
	switch doc := v.(type) {
	case map[string]interface{}:
		for _, key := range s.Required {
			if val, ok := doc[key]; !ok || val == nil {
				return joinPath(path, key)
			}
		}
		if s.Properties == nil {
			return ""
		}
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if missing := missingKey(pair.Value, doc[pair.Key], joinPath(path, pair.Key)); missing != "" {
				return missing
			}
		}
	case []interface{}:
		for i, item := range doc {
			if missing := missingKey(s.Items, item, fmt.Sprintf("%s[%d]", path, i)); missing != "" {
				return missing
			}
		}
	}
	return ""
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// JSONSchema returns the JSON schema of v, suitable for a structured output
// response format.
func JSONSchema(v interface{}) (json.RawMessage, error) {
	s := *schemaOf(v)
	s.Version = ""
	data, err := json.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// ToMap converts an output struct to its generic JSON form.
func ToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
