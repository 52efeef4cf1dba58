package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/username/timetable/internal/calendar"
)

// CSVSink writes a header row followed by one record per row.
type CSVSink struct {
	schema Schema
	writer *csv.Writer
	record []string
}

// NewCSVSink writes the header immediately.
func NewCSVSink(w io.Writer, schema Schema) (*CSVSink, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(schema.Names()); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return &CSVSink{
		schema: schema,
		writer: writer,
		record: make([]string, len(schema.Columns)),
	}, nil
}

// Write implements Sink.
func (s *CSVSink) Write(values []any) error {
	if err := checkArity(s.schema, values); err != nil {
		return err
	}
	for i, v := range values {
		s.record[i] = formatValue(v)
	}
	if err := s.writer.Write(s.record); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	return nil
}

// Close implements Sink. It does not close the underlying writer.
func (s *CSVSink) Close() error {
	s.writer.Flush()
	return s.writer.Error()
}

// formatValue converts a column value to its text form
func formatValue(v any) string {
	switch x := v.(type) {
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case calendar.Date:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}
