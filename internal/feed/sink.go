package feed

import (
	"fmt"
	"io"
	"strings"
)

// Sink consumes feed rows. Close flushes buffered rows; a Sink must not be
// used after Close.
type Sink interface {
	Write(values []any) error
	Close() error
}

// Aborter is implemented by sinks that can discard buffered or uncommitted
// rows when a run fails.
type Aborter interface {
	Abort() error
}

// Format is an output encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// DefaultBatchSize is the number of rows per Parquet record batch when none
// is configured.
const DefaultBatchSize = 1024

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSONL, FormatParquet:
		return f, nil
	case "json", "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown format %q, expected csv, jsonl or parquet", s)
	}
}

// ContentType returns the MIME type used when serving the format over HTTP.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSONL:
		return "application/x-ndjson"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}

// NewSink returns a Sink writing schema rows to w in format f. batchSize
// applies to Parquet only; values <= 0 select DefaultBatchSize.
func NewSink(f Format, w io.Writer, schema Schema, batchSize int) (Sink, error) {
	switch f {
	case FormatCSV:
		return NewCSVSink(w, schema)
	case FormatJSONL:
		return NewJSONLSink(w, schema), nil
	case FormatParquet:
		if batchSize <= 0 {
			batchSize = DefaultBatchSize
		}
		return NewParquetSink(w, schema, batchSize)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

func checkArity(schema Schema, values []any) error {
	if len(values) != len(schema.Columns) {
		return fmt.Errorf("%s: got %d values for %d columns", schema.Name, len(values), len(schema.Columns))
	}
	return nil
}
