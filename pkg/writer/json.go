// Package writer encodes reports as JSON, optionally compressed.
package writer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dump-sleuth/pkg/compression"
)

// JSONWriter writes values of T as JSON.
type JSONWriter[T any] struct {
	// Indent is the per-level indentation. Empty means compact output.
	Indent string
	// Compressor is applied to the encoded JSON. Nil writes plain JSON.
	Compressor compression.Compressor
}

// NewJSONWriter creates a compact, uncompressed writer.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{}
}

// NewPrettyJSONWriter creates a writer with two-space indentation.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

// NewReportWriter creates a pretty writer that compresses with c.
func NewReportWriter[T any](c compression.Compressor) *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  ", Compressor: c}
}

// WriteResult describes one written payload.
type WriteResult struct {
	Path           string
	JSONSize       int64
	CompressedSize int64
	CompressionPct float64
}

// Extension is the file suffix of the writer's output.
func (w *JSONWriter[T]) Extension() string {
	if w.Compressor == nil {
		return ".json"
	}
	return ".json" + w.Compressor.Type().Extension()
}

// Encode returns the (possibly compressed) payload and its JSON size.
func (w *JSONWriter[T]) Encode(data T) ([]byte, int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if w.Indent != "" {
		enc.SetIndent("", w.Indent)
	}
	if err := enc.Encode(data); err != nil {
		return nil, 0, fmt.Errorf("failed to encode data: %w", err)
	}
	raw := buf.Bytes()
	if w.Compressor == nil {
		return raw, int64(len(raw)), nil
	}
	packed, err := w.Compressor.Compress(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compress with %s: %w", w.Compressor.Name(), err)
	}
	return packed, int64(len(raw)), nil
}

// Write encodes data to out.
func (w *JSONWriter[T]) Write(data T, out io.Writer) (*WriteResult, error) {
	payload, jsonSize, err := w.Encode(data)
	if err != nil {
		return nil, err
	}
	if _, err := out.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write data: %w", err)
	}
	return newResult("", jsonSize, int64(len(payload))), nil
}

// WriteToFile encodes data to path, creating parent directories.
func (w *JSONWriter[T]) WriteToFile(data T, path string) (*WriteResult, error) {
	payload, jsonSize, err := w.Encode(data)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return newResult(path, jsonSize, int64(len(payload))), nil
}

func newResult(path string, jsonSize, written int64) *WriteResult {
	pct := 0.0
	if jsonSize > 0 {
		pct = float64(written) / float64(jsonSize) * 100
	}
	return &WriteResult{
		Path:           path,
		JSONSize:       jsonSize,
		CompressedSize: written,
		CompressionPct: pct,
	}
}
