// Package conform builds the Silver layer: one deduplicated, normalized
// table per entity from the raw Bronze snapshots.
//
// Normalization never fails on bad cells. Unparsable dates become the null
// date and unparsable numbers become 0; both are counted in Stats. The only
// fatal condition is structural: a missing snapshot or a declared column
// absent from a contributing snapshot (ErrorTypeSchemaMismatch).
package conform

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
)

// Stats counts what normalization did to one entity.
type Stats struct {
	Entity     string `json:"entity"`
	RowsIn     int    `json:"rows_in"`
	RowsOut    int    `json:"rows_out"`
	Duplicates int    `json:"duplicates"`
	EmptyKeys  int    `json:"empty_keys"`
	BadDates   int    `json:"bad_dates"`
	BadNumbers int    `json:"bad_numbers"`
}

// Conformer applies a fixed set of entity specs.
type Conformer struct {
	specs []EntitySpec
}

// New returns a conformer over copies of specs.
func New(specs []EntitySpec) *Conformer {
	own := make([]EntitySpec, len(specs))
	for i, s := range specs {
		s.Sources = append([]string(nil), s.Sources...)
		s.Columns = append([]ColumnSpec(nil), s.Columns...)
		own[i] = s
	}
	return &Conformer{specs: own}
}

// Specs returns the entity specs in processing order.
func (c *Conformer) Specs() []EntitySpec {
	return c.specs
}

// Sources returns every raw snapshot name the conformer reads.
func (c *Conformer) Sources() []string {
	var names []string
	seen := map[string]bool{}
	for _, s := range c.specs {
		for _, src := range s.Sources {
			if !seen[src] {
				seen[src] = true
				names = append(names, src)
			}
		}
	}
	return names
}

// Conform builds every entity from raw. It stops at the first schema mismatch.
func (c *Conformer) Conform(ctx context.Context, raw core.Tables) (core.Tables, []Stats, error) {
	out := make(core.Tables, len(c.specs))
	stats := make([]Stats, 0, len(c.specs))

	for _, spec := range c.specs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		table, st, err := Entity(spec, raw)
		if err != nil {
			return nil, nil, err
		}
		out.Put(table)
		stats = append(stats, st)

		logger.WithContext(ctx).Info("Entity conformed",
			zap.String("entity", spec.Name),
			zap.Int("rows_in", st.RowsIn),
			zap.Int("rows_out", st.RowsOut),
			zap.Int("duplicates", st.Duplicates),
			zap.Int("empty_keys", st.EmptyKeys),
			zap.Int("bad_dates", st.BadDates),
			zap.Int("bad_numbers", st.BadNumbers))
	}
	return out, stats, nil
}

// Entity conforms a single entity: concatenate sources in precedence order,
// keep the first row per natural key, then normalize every declared column.
func Entity(spec EntitySpec, raw core.Tables) (*core.Table, Stats, error) {
	st := Stats{Entity: spec.Name}

	inputs := make([]*core.Table, 0, len(spec.Sources))
	for _, name := range spec.Sources {
		table, ok := raw[name]
		if !ok || table == nil {
			return nil, st, errors.Newf(errors.ErrorTypeSchemaMismatch, "snapshot %s required by %s is missing", name, spec.Name).
				WithDetail("entity", spec.Name).
				WithDetail("source", name)
		}
		for _, col := range spec.Columns {
			if !table.Schema.Has(col.Name) {
				return nil, st, errors.Newf(errors.ErrorTypeSchemaMismatch, "column %s missing from %s", col.Name, name).
					WithDetail("entity", spec.Name).
					WithDetail("source", name).
					WithDetail("column", col.Name)
			}
		}
		inputs = append(inputs, table)
	}

	var all []core.Row
	for _, table := range inputs {
		all = append(all, table.Rows...)
	}
	st.RowsIn = len(all)
	for _, row := range all {
		if KeyValue(row[spec.NaturalKey]) == "" {
			st.EmptyKeys++
		}
	}
	kept := Dedupe(all, spec.NaturalKey)
	st.Duplicates = st.RowsIn - st.EmptyKeys - len(kept)

	out := core.NewTable(spec.Name, spec.Schema())
	for _, row := range kept {
		out.Append(normalizeRow(spec, row, &st))
	}
	st.RowsOut = out.Len()
	return out, st, nil
}

func normalizeRow(spec EntitySpec, row core.Row, st *Stats) core.Row {
	out := make(core.Row, len(spec.Columns))
	for _, col := range spec.Columns {
		v := row[col.Name]
		switch col.Type {
		case Key:
			out[col.Name] = KeyValue(v)
		case Identity:
			out[col.Name] = IdentityValue(v)
		case Number:
			n, ok := ParseNumber(v)
			if !ok {
				st.BadNumbers++
			}
			out[col.Name] = n
		case Integer:
			n, ok := ParseInteger(v)
			if !ok {
				st.BadNumbers++
			}
			out[col.Name] = n
		case Date:
			d, ok := ParseDate(v)
			if !ok && present(v) {
				st.BadDates++
			}
			out[col.Name] = d
		default:
			out[col.Name] = TextValue(v)
		}
	}
	return out
}

// present reports whether v carries a value, as opposed to a null.
func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case time.Time:
		return !x.IsZero()
	default:
		return true
	}
}

// Dedupe keeps the first row per key column, preserving order. Rows with an
// empty key are dropped.
func Dedupe(rows []core.Row, key string) []core.Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]core.Row, 0, len(rows))
	for _, row := range rows {
		k := KeyValue(row[key])
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}
