package source

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
)

// CSVReader reads a flat extract with a header row. Every column is text.
type CSVReader struct {
	path string
}

// NewCSVReader returns a reader for the extract at path.
func NewCSVReader(path string) *CSVReader {
	return &CSVReader{path: path}
}

// Read parses the whole file. A missing or unreadable file is
// ErrorTypeSourceUnavailable; a malformed file is ErrorTypeQueryFailed.
func (r *CSVReader) Read(ctx context.Context, d Directive) (*core.Table, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to open extract").
			WithDetail("path", r.path).
			WithDetail("name", d.Name)
	}
	defer file.Close() //nolint:errcheck

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.New(errors.ErrorTypeQueryFailed, "extract has no header row").
				WithDetail("path", r.path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeQueryFailed, "failed to read extract header").
			WithDetail("path", r.path)
	}

	fields := make([]core.Field, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			return nil, errors.Newf(errors.ErrorTypeQueryFailed, "extract header column %d is empty", i+1).
				WithDetail("path", r.path)
		}
		fields[i] = core.Field{Name: name, Type: core.FieldTypeString}
	}
	table := core.NewTable(d.Name, core.NewSchema(d.Name, fields...))

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQueryFailed, "malformed extract").
				WithDetail("path", r.path).
				WithDetail("row", table.Len()+2)
		}
		row := make(core.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = record[i]
		}
		table.Append(row)
	}

	logger.WithContext(ctx).Debug("Read extract",
		zap.String("path", r.path),
		zap.Int("rows", table.Len()))
	return table, nil
}

// Close is a no-op; the file is closed after each Read.
func (r *CSVReader) Close() error {
	return nil
}
