package columnar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/scholar/pkg/core"
)

// timestampType stores instants at microsecond precision in UTC.
var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// parquetWriter implements Writer for Parquet format
type parquetWriter struct {
	config         *WriterConfig
	arrowSchema    *arrow.Schema
	fileWriter     *pqarrow.FileWriter
	recordBuilder  *array.RecordBuilder
	recordsWritten int64
	currentBatch   int
	broken         bool
	mu             sync.Mutex
}

func newParquetWriter(w io.Writer, config *WriterConfig) (*parquetWriter, error) {
	if config.Schema == nil {
		return nil, fmt.Errorf("schema is required for Parquet writer")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWriterConfig().BatchSize
	}

	arrowSchema, err := toArrowSchema(config.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}

	codec, err := parquetCompression(config.Compression)
	if err != nil {
		return nil, err
	}

	pool := memory.NewGoAllocator()
	pw := &parquetWriter{
		config:        config,
		arrowSchema:   arrowSchema,
		recordBuilder: array.NewRecordBuilder(pool, arrowSchema),
	}

	opts := []parquet.WriterProperty{
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithAllocator(pool),
	}
	if config.PageSize > 0 {
		opts = append(opts, parquet.WithDataPageSize(int64(config.PageSize)))
	}
	props := parquet.NewWriterProperties(opts...)

	// The Arrow schema is stored so readers recover timestamp units and zones.
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(pool),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(arrowSchema, w, props, arrowProps)
	if err != nil {
		pw.recordBuilder.Release()
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}
	pw.fileWriter = fw

	return pw, nil
}

func (pw *parquetWriter) WriteRow(row core.Row) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.broken {
		return fmt.Errorf("writer is unusable after a failed row")
	}
	for i, field := range pw.arrowSchema.Fields() {
		if err := pw.appendValue(i, row[field.Name]); err != nil {
			pw.broken = true
			return fmt.Errorf("failed to append value for field %s: %w", field.Name, err)
		}
	}

	pw.currentBatch++
	if pw.currentBatch >= pw.config.BatchSize {
		return pw.flushBatch()
	}
	return nil
}

func (pw *parquetWriter) WriteRows(rows []core.Row) error {
	for _, row := range rows {
		if err := pw.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (pw *parquetWriter) Flush() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.flushBatch()
}

func (pw *parquetWriter) Close() error {
	pw.mu.Lock()
	broken := pw.broken
	pw.mu.Unlock()
	if broken {
		// A partially appended row cannot be flushed.
		pw.recordBuilder.Release()
		_ = pw.fileWriter.Close()
		return nil
	}

	if err := pw.Flush(); err != nil {
		return err
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.recordBuilder.Release()
	if err := pw.fileWriter.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}

func (pw *parquetWriter) RowsWritten() int64 {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.recordsWritten
}

func (pw *parquetWriter) flushBatch() error {
	if pw.currentBatch == 0 {
		return nil
	}

	record := pw.recordBuilder.NewRecord()
	defer record.Release()

	if err := pw.fileWriter.WriteBuffered(record); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	pw.recordsWritten += int64(pw.currentBatch)
	pw.currentBatch = 0
	return nil
}

// appendValue appends value to column colIdx. Values of the wrong Go type
// are an error rather than a silent null; zero times are nulls.
func (pw *parquetWriter) appendValue(colIdx int, value interface{}) error {
	builder := pw.recordBuilder.Field(colIdx)

	if value == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)

	case *array.Int64Builder:
		switch v := value.(type) {
		case int:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		case int64:
			b.Append(v)
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}

	case *array.Float64Builder:
		switch v := value.(type) {
		case float32:
			b.Append(float64(v))
		case float64:
			b.Append(v)
		case int64:
			b.Append(float64(v))
		case int:
			b.Append(float64(v))
		default:
			return fmt.Errorf("expected float, got %T", value)
		}

	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
		} else {
			b.Append(fmt.Sprintf("%v", value))
		}

	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time, got %T", value)
		}
		if v.IsZero() {
			b.AppendNull()
		} else {
			b.Append(arrow.Timestamp(v.UnixMicro()))
		}

	case *array.Date32Builder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected date, got %T", value)
		}
		if v.IsZero() {
			b.AppendNull()
		} else {
			b.Append(arrow.Date32FromTime(v))
		}

	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}

	return nil
}

func readParquet(r io.Reader, name string) (*core.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Parquet data: %w", err)
	}

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet reader: %w", err)
	}
	defer fr.Close() //nolint:errcheck

	pool := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{BatchSize: 10000}, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader: %w", err)
	}

	arrowSchema, err := arrowReader.Schema()
	if err != nil {
		return nil, fmt.Errorf("failed to get Arrow schema: %w", err)
	}
	table := core.NewTable(name, fromArrowSchema(name, arrowSchema))
	table.Rows = make([]core.Row, 0, fr.NumRows())

	rr, err := arrowReader.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create record reader: %w", err)
	}
	defer rr.Release()

	for rr.Next() {
		batch := rr.Record()
		for rowIdx := 0; rowIdx < int(batch.NumRows()); rowIdx++ {
			row := make(core.Row, batch.NumCols())
			for i := 0; i < int(batch.NumCols()); i++ {
				row[batch.Schema().Field(i).Name] = columnValue(batch.Column(i), rowIdx)
			}
			table.Append(row)
		}
	}
	if err := rr.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read record batch: %w", err)
	}

	return table, nil
}

func columnValue(col arrow.Array, rowIdx int) interface{} {
	if col.IsNull(rowIdx) {
		return nil
	}

	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(rowIdx)
	case *array.Int64:
		return c.Value(rowIdx)
	case *array.Int32:
		return int64(c.Value(rowIdx))
	case *array.Float64:
		return c.Value(rowIdx)
	case *array.String:
		return c.Value(rowIdx)
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(rowIdx).ToTime(unit).UTC()
	case *array.Date32:
		return c.Value(rowIdx).ToTime().UTC()
	default:
		return col.ValueStr(rowIdx)
	}
}

func toArrowSchema(schema *core.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(schema.Fields))

	for _, field := range schema.Fields {
		arrowType, err := toArrowType(field.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %s: %w", field.Name, err)
		}
		fields = append(fields, arrow.Field{
			Name:     field.Name,
			Type:     arrowType,
			Nullable: true,
		})
	}

	return arrow.NewSchema(fields, nil), nil
}

func toArrowType(fieldType core.FieldType) (arrow.DataType, error) {
	switch fieldType {
	case core.FieldTypeString:
		return arrow.BinaryTypes.String, nil
	case core.FieldTypeInt:
		return arrow.PrimitiveTypes.Int64, nil
	case core.FieldTypeFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case core.FieldTypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case core.FieldTypeTimestamp:
		return timestampType, nil
	case core.FieldTypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	default:
		return nil, fmt.Errorf("unsupported field type: %s", fieldType)
	}
}

func fromArrowSchema(name string, arrowSchema *arrow.Schema) *core.Schema {
	fields := make([]core.Field, 0, arrowSchema.NumFields())
	for i := 0; i < arrowSchema.NumFields(); i++ {
		field := arrowSchema.Field(i)
		fields = append(fields, core.Field{
			Name:     field.Name,
			Type:     fromArrowType(field.Type),
			Nullable: field.Nullable,
		})
	}
	return &core.Schema{Name: name, Fields: fields}
}

func fromArrowType(arrowType arrow.DataType) core.FieldType {
	switch arrowType.ID() {
	case arrow.BOOL:
		return core.FieldTypeBool
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return core.FieldTypeInt
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return core.FieldTypeFloat
	case arrow.DATE32, arrow.DATE64:
		return core.FieldTypeDate
	case arrow.TIMESTAMP:
		return core.FieldTypeTimestamp
	default:
		return core.FieldTypeString
	}
}

func parquetCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported Parquet compression: %s", name)
	}
}
