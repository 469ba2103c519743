package source

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/scholar/pkg/core"
)

// fieldTypeFor maps a database column type name (MySQL or PostgreSQL
// spelling) to the snapshot field type. Exact decimals stay textual.
func fieldTypeFor(dbType string) core.FieldType {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	t = strings.TrimPrefix(t, "UNSIGNED ")
	switch t {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR",
		"INT2", "INT4", "INT8":
		return core.FieldTypeInt
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8":
		return core.FieldTypeFloat
	case "BOOL", "BOOLEAN":
		return core.FieldTypeBool
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return core.FieldTypeTimestamp
	default:
		return core.FieldTypeString
	}
}

// convertValue normalizes a scanned driver value to the Go type of ft.
// Values that cannot be represented are kept as text.
func convertValue(ft core.FieldType, v interface{}) interface{} {
	if valuer, ok := v.(driver.Valuer); ok {
		inner, err := valuer.Value()
		if err != nil {
			return nil
		}
		v = inner
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	switch ft {
	case core.FieldTypeInt:
		switch n := v.(type) {
		case int64:
			return n
		case int32:
			return int64(n)
		case int16:
			return int64(n)
		case int8:
			return int64(n)
		case int:
			return int64(n)
		case uint64:
			if n > math.MaxInt64 {
				return strconv.FormatUint(n, 10)
			}
			return int64(n)
		case uint32:
			return int64(n)
		case string:
			if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
				return parsed
			}
			return n
		}
	case core.FieldTypeFloat:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return parsed
			}
			return n
		}
	case core.FieldTypeBool:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
			return b
		}
	case core.FieldTypeTimestamp:
		switch ts := v.(type) {
		case time.Time:
			return ts.UTC()
		case string:
			for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
				if parsed, err := time.Parse(layout, ts); err == nil {
					return parsed
				}
			}
			return ts
		}
	case core.FieldTypeString:
		switch s := v.(type) {
		case string:
			return s
		case time.Time:
			return s.UTC().Format(time.RFC3339)
		}
		return fmt.Sprint(v)
	}
	return v
}

// settle downgrades columns whose values did not all convert to the declared
// type to text, so the snapshot writer never sees a mixed column.
func settle(table *core.Table) {
	for i, f := range table.Schema.Fields {
		if f.Type == core.FieldTypeString {
			continue
		}
		mixed := false
		for _, row := range table.Rows {
			if _, ok := row[f.Name].(string); ok {
				mixed = true
				break
			}
		}
		if !mixed {
			continue
		}
		table.Schema.Fields[i].Type = core.FieldTypeString
		for _, row := range table.Rows {
			if v := row[f.Name]; v != nil {
				row[f.Name] = convertValue(core.FieldTypeString, v)
			}
		}
	}
}
