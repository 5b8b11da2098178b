package op

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Batch file format: UTF-8 text, one JSON-encoded Operation per line,
// trailing newline. Files are written once and never mutated.

// MarshalBatch serializes operations into NDJSON batch file content.
func MarshalBatch(ops []Operation) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	for i := range ops {
		if err := enc.Encode(&ops[i]); err != nil {
			return nil, fmt.Errorf("op: encoding batch line %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeLine parses a single batch file line into an Operation and
// validates its structural shape. Callers skip (and log) individual
// malformed lines rather than failing the whole file.
func DecodeLine(line []byte) (Operation, error) {
	var o Operation
	if err := json.Unmarshal(line, &o); err != nil {
		return Operation{}, fmt.Errorf("op: decoding batch line: %w", err)
	}

	if err := o.Validate(); err != nil {
		return Operation{}, err
	}

	return o, nil
}

// SplitLines returns the non-empty lines of a batch file.
func SplitLines(data []byte) [][]byte {
	var lines [][]byte

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}

	return lines
}
