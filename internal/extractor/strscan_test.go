package extractor

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/pkg/model"
)

func scan(t *testing.T, data []byte, opts model.ExtractionOptions) *StringSet {
	t.Helper()
	set, err := ScanStrings(context.Background(), dump.NewBytesAccessor(data), model.NewExtractionContext(opts))
	require.NoError(t, err)
	return set
}

func TestScanStrings_HelloWorld(t *testing.T) {
	data := []byte("\x01\x02\xffab\x00HELLOWORLD\x00\x90\x91xyz")
	set := scan(t, data, model.ExtractionOptions{MinStringLength: 4})

	fs, ok := set.Lookup("HELLOWORLD")
	require.True(t, ok)
	assert.EqualValues(t, 6, fs.Offset)
	assert.Equal(t, EncodingASCII, fs.Encoding)
	// "ab" and "xyz" are below the minimum
	assert.Equal(t, []string{"HELLOWORLD"}, set.Values())
}

func TestScanStrings_RunsSpanChunks(t *testing.T) {
	data := []byte("\x00\x00HELLOWORLD\x01W\x00I\x00D\x00E\x00\x01")
	for _, chunk := range []int64{1, 3, 4, 7, 1024} {
		set := scan(t, data, model.ExtractionOptions{ChunkSize: chunk})
		assert.Equal(t, []string{"HELLOWORLD", "WIDE"}, set.Values(), "chunk %d", chunk)
	}
}

func TestScanStrings_Wide(t *testing.T) {
	data := []byte("\xffS\x00e\x00c\x00r\x00e\x00t\x00\x00\x00A\x00B\x00\xff")
	set := scan(t, data, model.ExtractionOptions{MinStringLength: 4})

	fs, ok := set.Lookup("Secret")
	require.True(t, ok)
	assert.EqualValues(t, 1, fs.Offset)
	assert.Equal(t, EncodingWide, fs.Encoding)
	_, ok = set.Lookup("AB")
	assert.False(t, ok, "short wide run must be dropped")
	assert.Equal(t, 1, set.WideHits)
}

func TestScanStrings_WideOddAlignment(t *testing.T) {
	// the first pair breaks at 'X'; the run restarts on the odd byte
	data := []byte("aXT\x00E\x00S\x00T\x00\x01")
	set := scan(t, data, model.ExtractionOptions{MinStringLength: 4})
	fs, ok := set.Lookup("TEST")
	require.True(t, ok)
	assert.EqualValues(t, 2, fs.Offset)
}

func TestScanStrings_DeduplicatesAcrossPasses(t *testing.T) {
	data := []byte("TOKEN\x00\x01T\x00O\x00K\x00E\x00N\x00\x01TOKEN\x00")
	set := scan(t, data, model.ExtractionOptions{MinStringLength: 4})

	require.Len(t, set.Strings, 1)
	fs := set.Strings[0]
	assert.Equal(t, "TOKEN", fs.Value)
	assert.EqualValues(t, 0, fs.Offset)
	assert.Equal(t, 3, fs.Count)
	assert.Equal(t, 2, set.ASCIIHits)
	assert.Equal(t, 1, set.WideHits)
}

func TestScanStrings_AsciiMaximality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 64*1024)
	for i := range data {
		// bias towards printable bytes so runs are common
		if rng.Intn(4) == 0 {
			data[i] = byte(rng.Intn(256))
		} else {
			data[i] = byte(0x20 + rng.Intn(0x5f))
		}
	}

	set := scan(t, data, model.ExtractionOptions{MinStringLength: 4, ChunkSize: 1000})
	for _, fs := range set.Strings {
		if fs.Encoding != EncodingASCII {
			continue
		}
		start, end := int(fs.Offset), int(fs.Offset)+len(fs.Value)
		require.GreaterOrEqual(t, len(fs.Value), 4)
		assert.Equal(t, fs.Value, string(data[start:end]))
		if start > 0 {
			assert.False(t, isPrintable(data[start-1]), "run at %d extends left", start)
		}
		if end < len(data) {
			assert.False(t, isPrintable(data[end]), "run at %d extends right", start)
		}
	}
}

func TestScanStrings_IgnoresMaxScanBytes(t *testing.T) {
	// the second run starts before the byte window and ends after it
	data := []byte("FIRSTRUN\x00\x00\x00\x00SECONDRUN\x00")
	set := scan(t, data, model.ExtractionOptions{MaxScanBytes: 14, ChunkSize: 4})
	assert.Equal(t, []string{"FIRSTRUN", "SECONDRUN"}, set.Values())
	assert.False(t, set.Truncated)
}

func TestScanStrings_DistinctCap(t *testing.T) {
	data := []byte("ALPHA\x00BRAVO\x00ALPHA\x00CHARLIE\x00DELTA\x00BRAVO\x00")
	set := scan(t, data, model.ExtractionOptions{MaxDistinctStrings: 2})

	assert.Equal(t, []string{"ALPHA", "BRAVO"}, set.Values())
	assert.True(t, set.Truncated)
	// repeats of kept values are still counted
	fs, _ := set.Lookup("BRAVO")
	assert.Equal(t, 2, fs.Count)
	assert.Equal(t, 6, set.ASCIIHits)
}

// referenceStrings finds the same strings with regular expressions and maps
// each distinct value to its first offset.
func referenceStrings(data []byte, minLen int) map[string]int64 {
	ascii := regexp.MustCompile(fmt.Sprintf(`[\x20-\x7e]{%d,}`, minLen))
	wide := regexp.MustCompile(fmt.Sprintf(`(?:[\x20-\x7e]\x00){%d,}`, minLen))

	out := make(map[string]int64)
	keep := func(value string, offset int64) {
		if prev, ok := out[value]; !ok || offset < prev {
			out[value] = offset
		}
	}
	for _, loc := range ascii.FindAllIndex(data, -1) {
		keep(string(data[loc[0]:loc[1]]), int64(loc[0]))
	}
	for _, loc := range wide.FindAllIndex(data, -1) {
		units := make([]byte, 0, (loc[1]-loc[0])/2)
		for i := loc[0]; i < loc[1]; i += 2 {
			units = append(units, data[i])
		}
		keep(string(units), int64(loc[0]))
	}
	return out
}

func scannedStrings(set *StringSet) map[string]int64 {
	out := make(map[string]int64, len(set.Strings))
	for _, fs := range set.Strings {
		out[fs.Value] = fs.Offset
	}
	return out
}

// randomDump mixes noise with ASCII and UTF-16LE words.
func randomDump(rng *rand.Rand, size int) []byte {
	data := make([]byte, 0, size)
	for len(data) < size {
		n := 1 + rng.Intn(12)
		switch rng.Intn(4) {
		case 0:
			for i := 0; i < n; i++ {
				data = append(data, byte(rng.Intn(256)))
			}
		case 1:
			for i := 0; i < n; i++ {
				data = append(data, byte(0x20+rng.Intn(0x5f)))
			}
		case 2:
			for i := 0; i < n; i++ {
				data = append(data, byte(0x20+rng.Intn(0x5f)), 0)
			}
		default:
			data = append(data, 0)
		}
	}
	return data
}

func TestScanStrings_MatchesRegexReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		data := randomDump(rng, 512+rng.Intn(4096))
		minLen := 1 + rng.Intn(6)
		chunk := int64(1 + rng.Intn(300))

		set := scan(t, data, model.ExtractionOptions{
			MinStringLength:    minLen,
			ChunkSize:          chunk,
			MaxDistinctStrings: 1 << 20,
		})
		require.Equal(t, referenceStrings(data, minLen), scannedStrings(set),
			"round %d min %d chunk %d", round, minLen, chunk)
	}
}

func FuzzScanStrings(f *testing.F) {
	f.Add([]byte("HELLOWORLD\x00W\x00I\x00D\x00E\x00"), uint8(4), uint16(3))
	f.Add([]byte("aXT\x00E\x00S\x00T\x00\x01"), uint8(4), uint16(1))
	f.Add([]byte("TOKEN\x00\x01T\x00O\x00K\x00E\x00N\x00"), uint8(2), uint16(5))
	f.Add([]byte{}, uint8(1), uint16(1))

	f.Fuzz(func(t *testing.T, data []byte, minLen uint8, chunk uint16) {
		shortest := 1 + int(minLen%16)
		set, err := ScanStrings(context.Background(), dump.NewBytesAccessor(data), model.NewExtractionContext(model.ExtractionOptions{
			MinStringLength:    shortest,
			ChunkSize:          1 + int64(chunk),
			MaxDistinctStrings: 1 << 20,
		}))
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		want, got := referenceStrings(data, shortest), scannedStrings(set)
		if len(want) != len(got) {
			t.Fatalf("found %d strings, regex found %d", len(got), len(want))
		}
		for value, offset := range want {
			if at, ok := got[value]; !ok || at != offset {
				t.Fatalf("%q: scanned at %d (found %v), regex at %d", value, at, ok, offset)
			}
		}
	})
}
