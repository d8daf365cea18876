package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dump-sleuth/pkg/model"
)

const stringsSample = "\x00\x01http://evil.com/payload\x00\x00C:\\Windows\\System32\\cmd.exe\x00" +
	"password=hunter2\x00\x02 8.8.8.8 \x00svchost\x00svchost\x00"

func TestStringsModule(t *testing.T) {
	out := analyze(t, NewStringsModule(), []byte(stringsSample), model.FormatUnknown, model.ExtractionOptions{})

	assert.EqualValues(t, 5, intAt(t, out.Data, "total_strings"))
	assert.Equal(t, []string{"http://evil.com/payload"}, strList(t, out.Data, "categorized", "urls"))
	assert.Equal(t, []string{`C:\Windows\System32\cmd.exe`}, strList(t, out.Data, "categorized", "file_paths"))
	assert.Equal(t, []string{"password=hunter2"}, strList(t, out.Data, "categorized", "credentials"))
	assert.Equal(t, []string{"svchost"}, strList(t, out.Data, "categorized", "processes"))
	assert.Empty(t, strList(t, out.Data, "categorized", CategoryInteresting))
	assert.Empty(t, strList(t, out.Data, "interesting_flags"))
	truncated, ok := mustGet(t, out.Data, "truncated").AsBool()
	require.True(t, ok)
	assert.False(t, truncated)

	assert.Equal(t, []string{"8.8.8.8"}, strList(t, out.Data, "patterns", "ip_addresses"))
	assert.EqualValues(t, 4, intAt(t, out.Data, "statistics", "total_categorized"))
	assert.EqualValues(t, 1, intAt(t, out.Data, "statistics", "patterns_found", "potential_credentials"))
	assert.EqualValues(t, 1, intAt(t, out.Data, "statistics", "patterns_found", "urls"))
	assert.EqualValues(t, 6, intAt(t, out.Data, "encoding_distribution", "ascii"))
	assert.EqualValues(t, 0, intAt(t, out.Data, "encoding_distribution", "unicode"))
	assert.EqualValues(t, model.DefaultMaxStringLength, intAt(t, out.Data, "max_string_length"))

	common := objects(t, mustGet(t, out.Data, "statistics"), "most_common_strings")
	require.NotEmpty(t, common)
	assert.Equal(t, "svchost", field(common[0], "string"))
	assert.EqualValues(t, 2, intAt(t, common[0], "count"))

	require.Len(t, out.Artifacts, 4)
	assert.Equal(t, "urls", out.Artifacts[0].Category)
	assert.EqualValues(t, 2, out.Artifacts[0].Offset)
}

func TestStringsModule_Truncates(t *testing.T) {
	out := analyze(t, NewStringsModule(), []byte(stringsSample), model.FormatUnknown, model.ExtractionOptions{MaxStringLength: 10})
	assert.Equal(t, []string{"http://evi"}, strList(t, out.Data, "categorized", "urls"))
	assert.Equal(t, "http://evi", out.Artifacts[0].Value)
}

func TestStringsModule_ExcludeMovesToNextCategory(t *testing.T) {
	opts := model.ExtractionOptions{ExcludeCategories: []string{"urls"}}
	out := analyze(t, NewStringsModule(), []byte(stringsSample), model.FormatUnknown, opts)

	_, ok := out.Data.Path("categorized", "urls")
	assert.False(t, ok)
	assert.Equal(t, []string{"http://evil.com/payload", `C:\Windows\System32\cmd.exe`},
		strList(t, out.Data, "categorized", "file_paths"))
	assert.EqualValues(t, 0, intAt(t, out.Data, "statistics", "patterns_found", "urls"))
}

func TestStringsModule_CategoryCap(t *testing.T) {
	data := []byte("/a/one.txt\x00/b/two.txt\x00/c/three.txt\x00")
	out := analyze(t, NewStringsModule(), data, model.FormatUnknown, model.ExtractionOptions{CategoryCap: 2})
	assert.Equal(t, []string{"/a/one.txt", "/b/two.txt"}, strList(t, out.Data, "categorized", "file_paths"))
	assert.EqualValues(t, 3, intAt(t, out.Data, "total_strings"))
}

func TestStringsModule_InterestingFlags(t *testing.T) {
	data := []byte("QWxhZGRpbjpvcGVuIHNlc2FtZQ==\x00hello there friend\x000123456789abcdef0123\x00")
	out := analyze(t, NewStringsModule(), data, model.FormatUnknown, model.ExtractionOptions{})

	// the fallback takes every long alphabetic leftover
	assert.Equal(t, []string{"QWxhZGRpbjpvcGVuIHNlc2FtZQ==", "hello there friend", "0123456789abcdef0123"},
		strList(t, out.Data, "categorized", CategoryInteresting))
	// flags only mark encoded-looking strings
	assert.Equal(t, []string{"QWxhZGRpbjpvcGVuIHNlc2FtZQ==", "0123456789abcdef0123"},
		strList(t, out.Data, "interesting_flags"))

	capped := analyze(t, NewStringsModule(), data, model.FormatUnknown, model.ExtractionOptions{CategoryCap: 1})
	assert.Equal(t, []string{"QWxhZGRpbjpvcGVuIHNlc2FtZQ=="}, strList(t, capped.Data, "interesting_flags"))
}
