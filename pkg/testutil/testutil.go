// Package testutil provides testing utilities for scholar
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/logger"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// UseTestLogger routes the global logger to the test output until the test
// completes.
func UseTestLogger(t *testing.T) {
	t.Helper()
	restore := logger.Replace(TestLogger(t))
	t.Cleanup(restore)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// TestConfig returns the default configuration with storage rooted in a
// temporary directory.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	return cfg
}

// TextTable builds a raw table whose columns are all strings, the shape a
// flat extract is read in. Each row lists values in column order.
func TextTable(name string, columns []string, rows ...[]string) *core.Table {
	fields := make([]core.Field, len(columns))
	for i, c := range columns {
		fields[i] = core.Field{Name: c, Type: core.FieldTypeString}
	}
	t := core.NewTable(name, core.NewSchema(name, fields...))
	for _, values := range rows {
		row := make(core.Row, len(columns))
		for i, c := range columns {
			if i < len(values) {
				row[c] = values[i]
			}
		}
		t.Append(row)
	}
	return t
}
