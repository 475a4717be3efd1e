package catalog

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Layout of the priority fields workbook.
const (
	DefaultCatalogPath  = "DS - Campos prioritarios.xlsx"
	DefaultCatalogSheet = "Inventario campos"
	AliasColumn         = "Alias Campo (YAML y Catálogo MLEs)"
	TypeColumn          = "Tipo"

	// DefaultFieldType is assigned to fields absent from the catalog.
	DefaultFieldType = "String"
)

// Output kinds a field type maps to.
const (
	TypeNumeric = "Numeric"
	TypeTable   = "Table"
	TypeString  = "String"
)

// FieldCatalog maps field aliases to their type (Numeric, Table or String).
type FieldCatalog struct {
	types map[string]string
}

// NewFieldCatalog builds a catalog from an alias to type mapping.
func NewFieldCatalog(types map[string]string) *FieldCatalog {
	c := &FieldCatalog{types: make(map[string]string, len(types))}
	for k, v := range types {
		c.types[k] = v
	}
	return c
}

// LoadCatalog reads the alias and type columns of sheet from an Excel file.
func LoadCatalog(path, sheet string) (*FieldCatalog, error) {
	if sheet == "" {
		sheet = DefaultCatalogSheet
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening field catalog %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	aliasIdx, typeIdx := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case AliasColumn:
			aliasIdx = i
		case TypeColumn:
			typeIdx = i
		}
	}
	if aliasIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("sheet %q must have columns %q and %q", sheet, AliasColumn, TypeColumn)
	}

	c := &FieldCatalog{types: make(map[string]string, len(rows)-1)}
	for _, row := range rows[1:] {
		alias := cell(row, aliasIdx)
		if alias == "" {
			continue
		}
		if _, seen := c.types[alias]; seen {
			continue
		}
		c.types[alias] = cell(row, typeIdx)
	}
	return c, nil
}

// TypeOf returns the catalog type of field, DefaultFieldType when unknown or blank.
func (c *FieldCatalog) TypeOf(field string) string {
	if c == nil {
		return DefaultFieldType
	}
	if t := c.types[field]; t != "" {
		return t
	}
	return DefaultFieldType
}

// Len returns the number of catalogued fields.
func (c *FieldCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.types)
}

// NormalizeType maps a free-form type to TypeNumeric, TypeTable or TypeString.
func NormalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "numeric":
		return TypeNumeric
	case "table":
		return TypeTable
	default:
		return TypeString
	}
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
