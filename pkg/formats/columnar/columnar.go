// Package columnar encodes core tables as Apache Parquet for snapshot storage.
package columnar

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/scholar/pkg/core"
)

// Format represents a columnar storage format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
)

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	return "." + string(f)
}

// Writer streams rows of one schema into a columnar file.
type Writer interface {
	// WriteRow appends a single row
	WriteRow(row core.Row) error
	// WriteRows appends rows in order
	WriteRows(rows []core.Row) error
	// Flush writes any buffered rows
	Flush() error
	// Close flushes and finalizes the file
	Close() error
	// RowsWritten returns rows written so far
	RowsWritten() int64
}

// WriterConfig configures columnar writers
type WriterConfig struct {
	Format      Format
	Schema      *core.Schema
	Compression string
	BatchSize   int
	PageSize    int
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:      Parquet,
		Compression: "snappy",
		BatchSize:   10000,
		PageSize:    1024 * 1024,
	}
}

// NewWriter creates a new columnar writer
func NewWriter(w io.Writer, config *WriterConfig) (Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}

	switch config.Format {
	case Parquet, "":
		return newParquetWriter(w, config)
	default:
		return nil, fmt.Errorf("unsupported columnar format: %s", config.Format)
	}
}

// WriteTable encodes the whole table to w.
func WriteTable(w io.Writer, table *core.Table, compression string) error {
	config := DefaultWriterConfig()
	config.Schema = table.Schema
	if compression != "" {
		config.Compression = compression
	}

	writer, err := NewWriter(w, config)
	if err != nil {
		return err
	}
	if err := writer.WriteRows(table.Rows); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// ReadTable decodes a Parquet file into a table called name.
func ReadTable(r io.Reader, name string) (*core.Table, error) {
	return readParquet(r, name)
}
