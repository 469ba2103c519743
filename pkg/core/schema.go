// Package core defines the in-memory tabular model shared by every pipeline
// stage: a Table is an ordered Schema plus the rows read or derived for it.
package core

// Schema represents the column layout of a table
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// Field represents a column in the schema
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Nullable    bool
	Primary     bool
}

// FieldType represents the data type of a field
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInt       FieldType = "int"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeDate      FieldType = "date"
)

// NewSchema builds a schema of nullable fields.
func NewSchema(name string, fields ...Field) *Schema {
	for i := range fields {
		fields[i].Nullable = true
	}
	return &Schema{Name: name, Fields: fields}
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether the schema declares the named column.
func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
