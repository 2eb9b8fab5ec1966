package database

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

// EncodeLines serialises records as line-delimited JSON.
func EncodeLines[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeLines parses line-delimited JSON. Malformed lines are skipped and
// counted rather than failing the whole snapshot.
func DecodeLines[T any](data []byte) ([]T, int) {
	var records []T
	skipped := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("Snapshot truncated while decoding", "error", err)
	}

	return records, skipped
}
