package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // register the mysql driver
	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
	"github.com/ajitpratap0/scholar/pkg/sqlbuilder"
)

// Execer is the subset of *sql.DB the loader needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Loader applies a Model to the warehouse.
type Loader struct {
	db        Execer
	mode      string
	batchSize int
}

// NewLoader returns a loader for mode (rebuild or merge) inserting at most
// batchSize rows per statement.
func NewLoader(db Execer, mode string, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if mode == "" {
		mode = config.ModeRebuild
	}
	return &Loader{db: db, mode: mode, batchSize: batchSize}
}

// Apply writes the model in a fixed order: drop facts, drop dimensions,
// create and load dimensions, create and load facts. Merge mode skips the
// drops and upserts by business key. There is no transaction across tables;
// a failure leaves earlier tables loaded. The returned counts cover every
// table loaded before the failure.
func (l *Loader) Apply(ctx context.Context, m *Model) (map[string]int, error) {
	log := logger.WithContext(ctx)
	loaded := make(map[string]int, len(m.Dimensions)+len(m.Facts))
	merge := l.mode == config.ModeMerge

	if !merge {
		for _, td := range m.Facts {
			if err := l.exec(ctx, td.Def.Name, td.Def.DropStatement()); err != nil {
				return loaded, err
			}
		}
		for _, td := range m.Dimensions {
			if err := l.exec(ctx, td.Def.Name, td.Def.DropStatement()); err != nil {
				return loaded, err
			}
		}
	}

	for _, group := range [][]TableData{m.Dimensions, m.Facts} {
		for _, td := range group {
			if err := l.exec(ctx, td.Def.Name, td.Def.CreateStatement(merge)); err != nil {
				return loaded, err
			}
		}
		for _, td := range group {
			start := time.Now()
			if err := l.insert(ctx, td, merge); err != nil {
				return loaded, err
			}
			loaded[td.Def.Name] = len(td.Rows)
			log.Info("table loaded",
				zap.String("table", td.Def.Name),
				zap.Int("rows", len(td.Rows)),
				zap.Duration("duration", time.Since(start)))
		}
	}
	return loaded, nil
}

func (l *Loader) insert(ctx context.Context, td TableData, merge bool) error {
	cols := td.Def.InsertColumns()
	for start := 0; start < len(td.Rows); start += l.batchSize {
		end := start + l.batchSize
		if end > len(td.Rows) {
			end = len(td.Rows)
		}
		chunk := td.Rows[start:end]

		args := make([]interface{}, 0, len(chunk)*len(cols))
		for i, row := range chunk {
			if len(row) != len(cols) {
				return errors.Newf(errors.ErrorTypePersistFailure,
					"table %s: row %d has %d values, want %d", td.Def.Name, start+i, len(row), len(cols)).
					WithDetail("table", td.Def.Name)
			}
			args = append(args, row...)
		}
		if err := l.exec(ctx, td.Def.Name, InsertStatement(td.Def, len(chunk), merge), args...); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) exec(ctx context.Context, table, query string, args ...interface{}) error {
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, errors.ErrorTypePersistFailure, fmt.Sprintf("load table %s", table)).
			WithDetail("table", table)
	}
	return nil
}

// InsertStatement renders a multi-row INSERT of rows tuples. With upsert the
// non-key columns are updated when the business key already exists.
func InsertStatement(def TableDef, rows int, upsert bool) string {
	cols := def.InsertColumns()
	return sqlbuilder.Build(sqlbuilder.MySQL, func(sb *sqlbuilder.Builder) {
		sb.WriteQuery("INSERT INTO ").WriteIdentifier(def.Name).
			WriteQuery(" (").WriteIdentifiers(cols).WriteQuery(") VALUES ")
		for i := 0; i < rows; i++ {
			if i > 0 {
				sb.WriteQuery(", ")
			}
			sb.WritePlaceholders(len(cols))
		}
		if !upsert {
			return
		}

		key := make(map[string]bool, len(def.Key()))
		for _, k := range def.Key() {
			key[k] = true
		}
		sb.WriteQuery(" ON DUPLICATE KEY UPDATE ")
		first := true
		for _, c := range cols {
			if key[c] {
				continue
			}
			if !first {
				sb.WriteQuery(", ")
			}
			first = false
			sb.WriteIdentifier(c).WriteQuery(" = VALUES(").WriteIdentifier(c).WriteQuery(")")
		}
		if first {
			// Every column is part of the key; keep the statement valid.
			k := def.Key()[0]
			sb.WriteIdentifier(k).WriteQuery(" = ").WriteIdentifier(k)
		}
	})
}

// EnsureDatabase creates the warehouse database if it does not exist.
func EnsureDatabase(ctx context.Context, db Execer, name string) error {
	stmt := sqlbuilder.Build(sqlbuilder.MySQL, func(sb *sqlbuilder.Builder) {
		sb.WriteQuery("CREATE DATABASE IF NOT EXISTS ").WriteIdentifier(name).
			WriteQuery(" CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci")
	})
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.ErrorTypePersistFailure, "create database "+name).
			WithDetail("database", name)
	}
	return nil
}

// Open connects to the warehouse, creating the database first when
// configured.
func Open(ctx context.Context, cfg config.WarehouseConfig) (*sql.DB, error) {
	if cfg.CreateDatabase {
		server, err := sql.Open("mysql", cfg.ServerDSN())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypePersistFailure, "open warehouse server")
		}
		err = EnsureDatabase(ctx, server, cfg.Database)
		_ = server.Close()
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePersistFailure, "open warehouse")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypePersistFailure, "ping warehouse").
			WithDetail("host", cfg.Host)
	}

	logger.Info("connected to warehouse",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("mode", cfg.Mode))
	return db, nil
}
