package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// JSONLSink writes one JSON object per line with keys in column order.
type JSONLSink struct {
	schema Schema
	w      *bufio.Writer
	keys   [][]byte
}

// NewJSONLSink returns a JSON Lines sink.
func NewJSONLSink(w io.Writer, schema Schema) *JSONLSink {
	keys := make([][]byte, len(schema.Columns))
	for i, c := range schema.Columns {
		keys[i] = []byte(strconv.Quote(c.Name) + ":")
	}
	return &JSONLSink{schema: schema, w: bufio.NewWriter(w), keys: keys}
}

// Write implements Sink.
func (s *JSONLSink) Write(values []any) error {
	if err := checkArity(s.schema, values); err != nil {
		return err
	}
	s.w.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			s.w.WriteByte(',')
		}
		s.w.Write(s.keys[i])
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", s.schema.Columns[i].Name, err)
		}
		s.w.Write(b)
	}
	s.w.WriteByte('}')
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write JSON row: %w", err)
	}
	return nil
}

// Close implements Sink. It does not close the underlying writer.
func (s *JSONLSink) Close() error {
	return s.w.Flush()
}
