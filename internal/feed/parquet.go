package feed

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/username/timetable/internal/calendar"
)

// ArrowSchema maps a feed schema onto Arrow types. Dates become date32.
func ArrowSchema(s Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(s.Columns))
	for i, c := range s.Columns {
		var dt arrow.DataType
		switch c.Type {
		case TypeInt32:
			dt = arrow.PrimitiveTypes.Int32
		case TypeDate:
			dt = arrow.FixedWidthTypes.Date32
		case TypeBool:
			dt = arrow.FixedWidthTypes.Boolean
		default:
			return nil, fmt.Errorf("column %s: unsupported type %s", c.Name, c.Type)
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt}
	}
	md := arrow.NewMetadata([]string{"table"}, []string{s.Name})
	return arrow.NewSchema(fields, &md), nil
}

// ParquetSink buffers rows into Arrow record batches and writes them as
// Snappy-compressed Parquet row groups.
type ParquetSink struct {
	schema    Schema
	builder   *array.RecordBuilder
	writer    *pqarrow.FileWriter
	batchSize int
	pending   int
}

// nopCloser keeps the Parquet writer from closing the caller's writer.
type nopCloser struct{ io.Writer }

// NewParquetSink returns a Parquet sink flushing every batchSize rows.
func NewParquetSink(w io.Writer, schema Schema, batchSize int) (*ParquetSink, error) {
	as, err := ArrowSchema(schema)
	if err != nil {
		return nil, err
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(as, nopCloser{w}, props, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	mem := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(mem, as)
	builder.Reserve(batchSize)

	return &ParquetSink{
		schema:    schema,
		builder:   builder,
		writer:    writer,
		batchSize: batchSize,
	}, nil
}

// Write implements Sink.
func (s *ParquetSink) Write(values []any) error {
	if err := checkArity(s.schema, values); err != nil {
		return err
	}
	// Check every value first so a bad row never leaves columns uneven.
	for i, v := range values {
		if err := checkType(s.schema.Columns[i], v); err != nil {
			return err
		}
	}
	for i, v := range values {
		appendValue(s.builder.Field(i), v)
	}
	s.pending++
	if s.pending >= s.batchSize {
		return s.flush()
	}
	return nil
}

func (s *ParquetSink) flush() error {
	if s.pending == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()
	s.pending = 0

	if err := s.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch to parquet: %w", err)
	}
	return nil
}

// Close implements Sink. It writes the remaining rows and the file footer
// but does not close the underlying writer.
func (s *ParquetSink) Close() error {
	defer s.builder.Release()
	if err := s.flush(); err != nil {
		s.writer.Close()
		return err
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func checkType(c Column, v any) error {
	var ok bool
	switch c.Type {
	case TypeInt32:
		_, ok = v.(int32)
	case TypeDate:
		_, ok = v.(calendar.Date)
	case TypeBool:
		_, ok = v.(bool)
	}
	if !ok {
		return fmt.Errorf("column %s: want %s, got %T", c.Name, c.Type, v)
	}
	return nil
}

func appendValue(b array.Builder, v any) {
	switch bb := b.(type) {
	case *array.Int32Builder:
		bb.Append(v.(int32))
	case *array.Date32Builder:
		bb.Append(arrow.Date32FromTime(v.(calendar.Date).Time()))
	case *array.BooleanBuilder:
		bb.Append(v.(bool))
	}
}
