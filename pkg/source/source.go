// Package source reads raw tables from the upstream collaborators of the ETL.
//
// Readers perform no transformation: a relational table comes back with the
// database's column types, a flat extract comes back as text. Reachability
// failures are reported as ErrorTypeSourceUnavailable, read failures on a
// reachable source as ErrorTypeQueryFailed. Readers never retry.
package source

import (
	"context"

	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
)

// Directive names one table to read and the logical name of the result.
type Directive struct {
	// Name is the logical name the table is staged under.
	Name string
	// Table is the source table. Ignored by file readers.
	Table string
	// Query replaces the default full-table scan when set.
	Query string
}

// Reader reads complete tables from one source.
type Reader interface {
	Read(ctx context.Context, d Directive) (*core.Table, error)
	Close() error
}

// Directives returns one directive per configured table mapping.
func Directives(cfg config.SourceConfig) []Directive {
	out := make([]Directive, 0, len(cfg.Tables))
	for _, t := range cfg.Tables {
		out = append(out, Directive{Name: t.As, Table: t.Table})
	}
	return out
}

// Open returns the reader for cfg.Driver. Relational readers connect eagerly
// so an unreachable source fails here.
func Open(ctx context.Context, cfg config.SourceConfig) (Reader, error) {
	switch cfg.Driver {
	case "mysql":
		return OpenMySQL(ctx, cfg)
	case "postgres":
		return OpenPostgres(ctx, cfg)
	case "csv":
		return NewCSVReader(cfg.Path), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown source driver %q", cfg.Driver).
			WithDetail("source", cfg.Name)
	}
}
