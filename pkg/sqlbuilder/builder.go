// Package sqlbuilder provides pooled SQL text building with dialect-aware
// identifier quoting and placeholders.
package sqlbuilder

import (
	"strconv"
	"strings"
	"sync"
)

// Dialect selects quoting and placeholder syntax.
type Dialect int

const (
	// MySQL quotes identifiers with backticks and uses ? placeholders.
	MySQL Dialect = iota
	// Postgres quotes identifiers with double quotes and uses $n placeholders.
	Postgres
)

var builderPool = sync.Pool{
	New: func() interface{} {
		b := &strings.Builder{}
		b.Grow(1024)
		return b
	},
}

// Builder accumulates one statement.
type Builder struct {
	builder *strings.Builder
	dialect Dialect
	params  int
}

// New returns a pooled builder. Call Close when done.
func New(dialect Dialect) *Builder {
	b := builderPool.Get().(*strings.Builder)
	b.Reset()
	return &Builder{builder: b, dialect: dialect}
}

// WriteQuery writes a SQL query part
func (sb *Builder) WriteQuery(query string) *Builder {
	sb.builder.WriteString(query)
	return sb
}

// WriteSpace adds a space
func (sb *Builder) WriteSpace() *Builder {
	sb.builder.WriteByte(' ')
	return sb
}

// WriteStringLiteral writes a quoted string literal
func (sb *Builder) WriteStringLiteral(value string) *Builder {
	sb.builder.WriteByte('\'')
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\'':
			sb.builder.WriteString("''")
		case '\\':
			if sb.dialect == MySQL {
				sb.builder.WriteString(`\\`)
			} else {
				sb.builder.WriteByte('\\')
			}
		default:
			sb.builder.WriteByte(value[i])
		}
	}
	sb.builder.WriteByte('\'')
	return sb
}

// WriteIdentifier writes a quoted identifier
func (sb *Builder) WriteIdentifier(name string) *Builder {
	sb.builder.WriteString(QuoteIdentifier(sb.dialect, name))
	return sb
}

// WriteIdentifiers writes a comma separated list of quoted identifiers.
func (sb *Builder) WriteIdentifiers(names []string) *Builder {
	for i, name := range names {
		if i > 0 {
			sb.builder.WriteString(", ")
		}
		sb.WriteIdentifier(name)
	}
	return sb
}

// WriteInt writes an integer value
func (sb *Builder) WriteInt(value int64) *Builder {
	sb.builder.WriteString(strconv.FormatInt(value, 10))
	return sb
}

// WritePlaceholders writes a parenthesized tuple of n bind placeholders.
// Postgres placeholders are numbered across the whole statement.
func (sb *Builder) WritePlaceholders(n int) *Builder {
	sb.builder.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.builder.WriteString(", ")
		}
		sb.params++
		if sb.dialect == Postgres {
			sb.builder.WriteByte('$')
			sb.builder.WriteString(strconv.Itoa(sb.params))
		} else {
			sb.builder.WriteByte('?')
		}
	}
	sb.builder.WriteByte(')')
	return sb
}

// Len returns the number of bytes written so far.
func (sb *Builder) Len() int {
	return sb.builder.Len()
}

// String returns the built SQL query
func (sb *Builder) String() string {
	return sb.builder.String()
}

// Close releases the builder back to the pool
func (sb *Builder) Close() {
	if sb.builder != nil {
		builderPool.Put(sb.builder)
		sb.builder = nil
	}
}

// QuoteIdentifier quotes name for dialect, doubling embedded quote characters.
func QuoteIdentifier(dialect Dialect, name string) string {
	quote := "`"
	if dialect == Postgres {
		quote = `"`
	}
	return quote + strings.ReplaceAll(name, quote, quote+quote) + quote
}

// Build runs fn against a fresh builder and returns the statement.
func Build(dialect Dialect, fn func(*Builder)) string {
	sb := New(dialect)
	defer sb.Close()
	fn(sb)
	return sb.String()
}
