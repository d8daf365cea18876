package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata() RunMetadata {
	return RunMetadata{
		RunID:       "run-1",
		ToolVersion: "dev",
		Timestamp:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Dump: DumpMetadata{
			FilePath:   "/tmp/a.dmp",
			FileName:   "a.dmp",
			FileSize:   4096,
			Format:     FormatMinidump,
			AccessMode: AccessPread,
			Header:     HeaderInfo{Signature: "MDMP", Version: 1, StreamCount: 3, Timestamp: 1700000000},
		},
	}
}

func TestAggregateResult_WriteOnce(t *testing.T) {
	agg := NewAggregateResult(testMetadata())

	require.NoError(t, agg.SetResult(Succeeded("strings", Int(1), nil, time.Millisecond)))
	err := agg.SetResult(Failed("strings", "PluginError", "boom", 0))
	assert.True(t, errors.Is(err, ErrSlotFilled))

	r, ok := agg.Result("strings")
	require.True(t, ok)
	assert.True(t, r.Success)
}

func TestAggregateResult_Freeze(t *testing.T) {
	agg := NewAggregateResult(testMetadata())
	agg.Freeze()

	assert.True(t, agg.Frozen())
	assert.ErrorIs(t, agg.SetResult(Succeeded("x", Value{}, nil, 0)), ErrResultFrozen)
	assert.ErrorIs(t, agg.AddError("x", "m", "PluginError"), ErrResultFrozen)
	assert.ErrorIs(t, agg.AddWarning("x", "m"), ErrResultFrozen)
	assert.Empty(t, agg.ModuleNames())
}

func TestAggregateResult_CopiesAreDetached(t *testing.T) {
	agg := NewAggregateResult(testMetadata())
	require.NoError(t, agg.AddError("network", "bad", "PluginError"))
	require.NoError(t, agg.AddWarning("parser", "short header"))

	errs := agg.Errors()
	errs[0].Message = "changed"
	assert.Equal(t, "bad", agg.Errors()[0].Message)
	assert.Len(t, agg.Warnings(), 1)
}

func TestAggregateResult_Summary(t *testing.T) {
	agg := NewAggregateResult(testMetadata())
	data := Object(NewMap().Set("summary", Object(NewMap().Set("total", Int(7)))))
	require.NoError(t, agg.SetResult(Succeeded("processes", data,
		[]ArtifactRecord{NewArtifact("process", "lsass.exe", 10)}, 0)))
	require.NoError(t, agg.SetResult(Failed("network", "TimeoutError", "slow", 0)))
	require.NoError(t, agg.AddError("network", "slow", "TimeoutError"))

	s := agg.Summary()
	run, _ := s.Get("modules_run")
	n, _ := run.AsInt()
	assert.EqualValues(t, 2, n)

	total, ok := Object(s).Path("modules", "processes", "summary", "total")
	require.True(t, ok)
	v, _ := total.AsInt()
	assert.EqualValues(t, 7, v)

	cat, ok := Object(s).Path("modules", "network", "error_category")
	require.True(t, ok)
	str, _ := cat.AsString()
	assert.Equal(t, "TimeoutError", str)

	assert.Len(t, agg.Artifacts(), 1)
}

func TestAggregateResult_MarshalJSON(t *testing.T) {
	agg := NewAggregateResult(testMetadata())
	require.NoError(t, agg.SetResult(Succeeded("strings", Object(NewMap().Set("b", Int(1)).Set("a", Int(2))), nil, 1500*time.Microsecond)))
	require.NoError(t, agg.SetResult(Failed("registry", "PluginError", "boom", 0)))
	agg.Freeze()

	raw, err := json.Marshal(agg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	meta := decoded["metadata"].(map[string]interface{})
	assert.Equal(t, "minidump", meta["format"])
	assert.Equal(t, "a.dmp", meta["file_name"])
	header := meta["header"].(map[string]interface{})
	assert.EqualValues(t, 3, header["stream_count"])

	results := decoded["results"].(map[string]interface{})
	strs := results["strings"].(map[string]interface{})
	assert.Equal(t, true, strs["success"])
	assert.EqualValues(t, 1.5, strs["duration_ms"])
	assert.Contains(t, string(raw), `"data":{"b":1,"a":2}`)

	reg := results["registry"].(map[string]interface{})
	assert.Equal(t, "PluginError", reg["error_category"])
	_, hasData := reg["data"]
	assert.False(t, hasData)
}
