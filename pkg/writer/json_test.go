package writer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dump-sleuth/pkg/compression"
	"github.com/dump-sleuth/pkg/model"
)

type headerInfo struct {
	Format string `json:"format"`
	Size   int    `json:"size"`
}

func sampleReport(t *testing.T) *model.AggregateResult {
	t.Helper()
	agg := model.NewAggregateResult(model.RunMetadata{
		RunID:       "run-1",
		ToolVersion: "test",
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Dump:        model.DumpMetadata{FileName: "sample.dmp", Format: model.FormatMinidump},
	})
	require.NoError(t, agg.SetResult(model.Succeeded("strings",
		model.Object(model.NewMap().Set("total", model.Int(3))), nil, time.Millisecond)))
	agg.Freeze()
	return agg
}

func TestJSONWriter_Write(t *testing.T) {
	data := headerInfo{Format: "minidump", Size: 42}

	t.Run("compact", func(t *testing.T) {
		var buf bytes.Buffer
		res, err := NewJSONWriter[headerInfo]().Write(data, &buf)
		require.NoError(t, err)
		assert.Equal(t, `{"format":"minidump","size":42}`+"\n", buf.String())
		assert.EqualValues(t, buf.Len(), res.JSONSize)
		assert.InDelta(t, 100.0, res.CompressionPct, 0.001)
	})

	t.Run("pretty", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := NewPrettyJSONWriter[headerInfo]().Write(data, &buf)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "\n  \"format\"")

		var decoded headerInfo
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, data, decoded)
	})
}

func TestReportWriter_Compressed(t *testing.T) {
	report := sampleReport(t)

	for _, typ := range []compression.Type{compression.TypeGzip, compression.TypeZstd, compression.TypeNone} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := compression.New(typ, compression.LevelDefault)
			require.NoError(t, err)
			defer compression.Close(c)

			w := NewReportWriter[*model.AggregateResult](c)
			path := filepath.Join(t.TempDir(), "nested", "report"+w.Extension())

			res, err := w.WriteToFile(report, path)
			require.NoError(t, err)
			assert.Equal(t, path, res.Path)

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.EqualValues(t, len(raw), res.CompressedSize)
			assert.Equal(t, typ, compression.DetectType(raw))

			plain, err := compression.AutoDecompress(raw)
			require.NoError(t, err)
			assert.EqualValues(t, len(plain), res.JSONSize)

			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(plain, &decoded))
			assert.Contains(t, decoded, "metadata")
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".json", NewJSONWriter[int]().Extension())
	assert.Equal(t, ".json.gz", NewReportWriter[int](compression.NewGzipCompressor(compression.LevelDefault)).Extension())
	assert.Equal(t, ".json", NewReportWriter[int](compression.NoOpCompressor{}).Extension())
}

func TestWrite_EncodeError(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewJSONWriter[func()]().Write(func() {}, &buf)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}
