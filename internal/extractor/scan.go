package extractor

import (
	"context"
	"strings"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/pkg/model"
)

// scanLimit is the number of bytes a module may look at.
func scanLimit(acc dump.Accessor, ec *model.ExtractionContext) int64 {
	return min(acc.Size(), ec.MaxScanBytes())
}

// forEachChunk reads [0, limit) in chunkSize pieces, each starting overlap
// bytes before the end of the previous one. fn returning false stops the
// walk. The context is checked before every read.
func forEachChunk(ctx context.Context, acc dump.Accessor, limit, chunkSize, overlap int64, fn func(offset int64, chunk []byte) bool) error {
	if overlap >= chunkSize {
		overlap = 0
	}
	for offset := int64(0); offset < limit; offset += chunkSize - overlap {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(chunkSize, limit-offset)
		chunk := acc.Read(offset, int(n))
		if len(chunk) == 0 {
			return nil
		}
		if !fn(offset, chunk) {
			return nil
		}
		if offset+n >= limit {
			return nil
		}
	}
	return nil
}

// readWindow returns the scan window as one buffer.
func readWindow(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext) ([]byte, error) {
	limit := scanLimit(acc, ec)
	buf := make([]byte, 0, limit)
	err := forEachChunk(ctx, acc, limit, ec.ChunkSize(), 0, func(_ int64, chunk []byte) bool {
		buf = append(buf, chunk...)
		return true
	})
	return buf, err
}

// readText returns the scan window decoded as UTF-8 with invalid bytes
// dropped. Offsets into the result are offsets into the decoded text.
func readText(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext) (string, error) {
	buf, err := readWindow(ctx, acc, ec)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(buf), ""), nil
}

// contextWindow returns text[start-before : end+after] clamped and trimmed.
func contextWindow(text string, start, end, before, after int) string {
	lo := max(0, start-before)
	hi := min(len(text), end+after)
	return strings.TrimSpace(strings.ToValidUTF8(text[lo:hi], ""))
}
