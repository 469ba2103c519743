package source

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
	"github.com/ajitpratap0/scholar/pkg/sqlbuilder"
)

// PostgresReader reads full tables from a PostgreSQL source.
type PostgresReader struct {
	name string
	pool *pgxpool.Pool
}

// OpenPostgres connects to the source described by cfg.
func OpenPostgres(ctx context.Context, cfg config.SourceConfig) (*PostgresReader, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string").
			WithDetail("source", cfg.Name)
	}
	poolConfig.MaxConns = 2
	poolConfig.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to create connection pool").
			WithDetail("source", cfg.Name)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to connect to postgres source").
			WithDetail("source", cfg.Name).
			WithDetail("host", cfg.Host).
			WithDetail("database", cfg.Database)
	}

	logger.WithContext(ctx).Info("Connected to PostgreSQL source",
		zap.String("source", cfg.Name),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresReader{name: cfg.Name, pool: pool}, nil
}

// Read returns every row of d.Table.
func (r *PostgresReader) Read(ctx context.Context, d Directive) (*core.Table, error) {
	query := d.Query
	if query == "" {
		query = "SELECT * FROM " + sqlbuilder.QuoteIdentifier(sqlbuilder.Postgres, d.Table)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to acquire connection").
			WithDetail("source", r.name)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, classifyPgError(err, r.name, d)
	}
	defer rows.Close()

	typeMap := conn.Conn().TypeMap()
	descriptions := rows.FieldDescriptions()
	fields := make([]core.Field, len(descriptions))
	for i, fd := range descriptions {
		typeName := "text"
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = t.Name
		}
		fields[i] = core.Field{Name: fd.Name, Type: fieldTypeFor(typeName)}
	}
	table := core.NewTable(d.Name, core.NewSchema(d.Name, fields...))

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classifyPgError(err, r.name, d)
		}
		row := make(core.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = convertValue(f.Type, values[i])
		}
		table.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err, r.name, d)
	}

	settle(table)
	return table, nil
}

// Close releases the pool.
func (r *PostgresReader) Close() error {
	r.pool.Close()
	return nil
}

func classifyPgError(err error, source string, d Directive) error {
	errType := errors.ErrorTypeSourceUnavailable
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) || stderrors.Is(err, pgx.ErrNoRows) {
		errType = errors.ErrorTypeQueryFailed
	}
	return errors.Wrap(err, errType, "failed to read source table").
		WithDetail("source", source).
		WithDetail("table", d.Table).
		WithDetail("name", d.Name)
}
