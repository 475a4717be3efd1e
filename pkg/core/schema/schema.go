// Package schema defines the JSON contracts the extraction, alternative and
// critique prompts ask the model to answer with.
package schema

// MaxTextLength bounds the summary of a string field. Summaries are only kept
// for texts longer than this.
const MaxTextLength = 1000

// UnitCodeMap maps unit names to the codes used in NumericValue.Unit.
var UnitCodeMap = map[string]int{
	"unit": 1,
	"pbs":  6,
	"%":    7,
}

// TextSource is a quoted chunk that supports an extracted value.
type TextSource struct {
	Text          string `json:"text" jsonschema_description:"The relevant text from the chunk to extract the result."`
	ChunkID       string `json:"chunk_id" jsonschema_description:"The unique identifier for the text chunk."`
	ChunkDocument string `json:"chunk_document" jsonschema_description:"The document id from which the text chunk was extracted."`
	ChunkPage     []int  `json:"chunk_page" jsonschema_description:"The page numbers in the document where the text chunk is located."`
}

// BaseOutputField carries the traceability shared by every extraction output.
type BaseOutputField struct {
	TextSource    []TextSource `json:"text_source" validate:"dive" jsonschema_description:"List of text sources contributing to this field."`
	Justification string       `json:"justification" jsonschema_description:"Justification on how the value was extracted from the text sources."`
	SynonymsFound []string     `json:"synonyms_found" jsonschema_description:"List of synonyms found in the text sources."`
}

// OutputSchemaCritic is the verdict of the critique prompt. Confidence is not
// bounded; models answer on 0-1 as well as 0-100 scales.
type OutputSchemaCritic struct {
	IsValid       bool    `json:"is_valid" jsonschema_description:"Indicates if extracted data is a valid result."`
	Confidence    float64 `json:"confidence" jsonschema_description:"Confidence score about the validity of is_valid flag."`
	Justification string  `json:"justification" jsonschema_description:"Justification for the validity assessment."`
}

// StringField is free text with an optional summary.
type StringField struct {
	Text    string `json:"text" jsonschema_description:"The string value extracted."`
	Summary string `json:"summary,omitempty" validate:"max=1000" jsonschema_description:"A concise summary of the text, only when the text exceeds 1000 characters."`
}

// Normalize drops the summary of texts that fit in MaxTextLength.
func (s *StringField) Normalize() {
	if len([]rune(s.Text)) <= MaxTextLength {
		s.Summary = ""
	}
}

// TableField is a table copied from the sources. Every row has exactly one
// cell per column.
type TableField struct {
	Columns []string   `json:"columns" validate:"min=1" jsonschema_description:"List of column titles EXACTLY as they appear in the table. Minimum 1 column."`
	Rows    [][]string `json:"rows" validate:"min=1" jsonschema_description:"2D array with ALL table rows. Each inner list has EXACTLY len(columns) string values; use an empty string for empty cells."`
}

// NumericValue is one amount. Unit is a code of UnitCodeMap; a missing unit is
// read as 1 (unit). Field and Unit are the only optional keys.
type NumericValue struct {
	Field    string  `json:"field,omitempty" jsonschema_description:"The name of the numeric field. Can be empty."`
	Value    float64 `json:"value" jsonschema_description:"The numeric value."`
	Unit     *int    `json:"unit,omitempty" validate:"omitempty,oneof=1 6 7" jsonschema_description:"Unit code of the value: 1 unit, 6 basis points, 7 percentage. If no unit, use 1."`
	Currency string  `json:"currency" jsonschema_description:"The currency code if applicable, e.g. USD, EUR."`
}

// UnitCode returns Unit, defaulting to the "unit" code.
func (n NumericValue) UnitCode() int {
	if n.Unit == nil {
		return UnitCodeMap["unit"]
	}
	return *n.Unit
}

// NumericArrayValue is a list of amounts.
type NumericArrayValue struct {
	BaseOutputField
	Values []NumericValue `json:"values" validate:"dive" jsonschema_description:"List of numeric values."`
}

// OutputStringField is the extraction output of a text field.
type OutputStringField struct {
	BaseOutputField
	ResultField StringField `json:"result_field" jsonschema_description:"The StringField extracted."`
}

// Normalize applies StringField.Normalize to the result.
func (o *OutputStringField) Normalize() { o.ResultField.Normalize() }

// OutputTableField is the extraction output of a table field.
type OutputTableField struct {
	BaseOutputField
	ResultField TableField `json:"result_field" jsonschema_description:"The table extracted."`
}

// OutputNumericField is the extraction output of a numeric field.
type OutputNumericField struct {
	BaseOutputField
	ResultField NumericValue `json:"result_field" jsonschema_description:"The numeric value extracted."`
}

// OutputNumericArrayField is the extraction output of a list of amounts.
type OutputNumericArrayField struct {
	BaseOutputField
	ResultField NumericArrayValue `json:"result_field" jsonschema_description:"The numeric array value extracted."`
}

// CompositeNumericField is an amount reported as the sum of its components.
type CompositeNumericField struct {
	BaseOutputField
	ResultField []NumericValue `json:"result_field" validate:"dive" jsonschema_description:"List of numeric components that make up the composite value."`
}

// AlternativeExtractionStringField is the alternative output of a text field.
type AlternativeExtractionStringField struct {
	BaseOutputField
	ResultField StringField `json:"result_field" jsonschema_description:"The alternative string value extracted."`
	Confidence  float64     `json:"confidence" jsonschema_description:"Confidence score for the alternative extraction."`
}

// Normalize applies StringField.Normalize to the result.
func (o *AlternativeExtractionStringField) Normalize() { o.ResultField.Normalize() }

// AlternativeExtractionNumericField is the alternative output of a numeric field.
type AlternativeExtractionNumericField struct {
	BaseOutputField
	ResultField NumericValue `json:"result_field" jsonschema_description:"The alternative numeric value extracted."`
	Confidence  float64      `json:"confidence" jsonschema_description:"Confidence score for the alternative extraction."`
}

// AlternativeExtractionTableField is the alternative output of a table field.
type AlternativeExtractionTableField struct {
	BaseOutputField
	ResultField TableField `json:"result_field" jsonschema_description:"The alternative table value extracted."`
	Confidence  float64    `json:"confidence" jsonschema_description:"Confidence score for the alternative extraction."`
}

// AlternativeExtractionCompositeNumericField is the alternative output of a
// composite amount.
type AlternativeExtractionCompositeNumericField struct {
	BaseOutputField
	ResultField []NumericValue `json:"result_field" validate:"dive" jsonschema_description:"List of numeric components that make up the composite value."`
	Confidence  float64        `json:"confidence" jsonschema_description:"Confidence score for the alternative extraction."`
}
