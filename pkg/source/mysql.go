package source

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
	"github.com/ajitpratap0/scholar/pkg/sqlbuilder"
)

// MySQLReader reads full tables from a MySQL source.
type MySQLReader struct {
	name string
	db   *sql.DB
}

// OpenMySQL connects to the source described by cfg and verifies it is reachable.
func OpenMySQL(ctx context.Context, cfg config.SourceConfig) (*MySQLReader, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql source configuration").
			WithDetail("source", cfg.Name)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to connect to mysql source").
			WithDetail("source", cfg.Name).
			WithDetail("host", cfg.Host).
			WithDetail("database", cfg.Database)
	}

	logger.WithContext(ctx).Info("Connected to MySQL source",
		zap.String("source", cfg.Name),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return NewMySQLReader(cfg.Name, db), nil
}

// NewMySQLReader wraps an open database handle.
func NewMySQLReader(name string, db *sql.DB) *MySQLReader {
	return &MySQLReader{name: name, db: db}
}

// Read returns every row of d.Table, typed by the column metadata.
func (r *MySQLReader) Read(ctx context.Context, d Directive) (*core.Table, error) {
	query := d.Query
	if query == "" {
		query = "SELECT * FROM " + sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, d.Table)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifySQLError(err, r.name, d)
	}
	defer rows.Close() //nolint:errcheck

	table, err := scanSQLRows(d.Name, rows)
	if err != nil {
		return nil, classifySQLError(err, r.name, d)
	}
	return table, nil
}

// Close releases the connection pool.
func (r *MySQLReader) Close() error {
	return r.db.Close()
}

func scanSQLRows(name string, rows *sql.Rows) (*core.Table, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	fields := make([]core.Field, len(columnTypes))
	for i, ct := range columnTypes {
		fields[i] = core.Field{Name: ct.Name(), Type: fieldTypeFor(ct.DatabaseTypeName())}
	}
	table := core.NewTable(name, core.NewSchema(name, fields...))

	values := make([]interface{}, len(fields))
	scanArgs := make([]interface{}, len(fields))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		row := make(core.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = convertValue(f.Type, values[i])
		}
		table.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	settle(table)
	return table, nil
}

// classifySQLError separates a lost connection from a rejected query.
func classifySQLError(err error, source string, d Directive) error {
	errType := errors.ErrorTypeQueryFailed
	var netErr net.Error
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, mysql.ErrInvalidConn) || stderrors.As(err, &netErr) {
		errType = errors.ErrorTypeSourceUnavailable
	}
	return errors.Wrap(err, errType, "failed to read source table").
		WithDetail("source", source).
		WithDetail("table", d.Table).
		WithDetail("name", d.Name)
}
