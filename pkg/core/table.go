package core

// Row is one record keyed by column name. A nil value is a null.
type Row map[string]interface{}

// Table is a named, schema-typed set of rows.
type Table struct {
	Name   string
	Schema *Schema
	Rows   []Row
}

// NewTable returns an empty table for schema.
func NewTable(name string, schema *Schema) *Table {
	return &Table{Name: name, Schema: schema}
}

// Append adds a row.
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Tables indexes tables by name.
type Tables map[string]*Table

// Put adds t under its name.
func (ts Tables) Put(t *Table) {
	ts[t.Name] = t
}
