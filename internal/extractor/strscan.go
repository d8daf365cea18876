package extractor

import (
	"context"
	"sort"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/pkg/model"
)

// Encoding of a scanned string.
const (
	EncodingASCII = "ascii"
	EncodingWide  = "utf16le"
)

// FoundString is one distinct string with its first occurrence.
type FoundString struct {
	Value    string
	Offset   int64
	Encoding string
	Count    int
}

// StringSet is the deduplicated union of the ASCII and wide passes.
type StringSet struct {
	Strings   []FoundString // by first offset
	ASCIIHits int
	WideHits  int
	// Truncated is set when distinct strings past the cap were dropped.
	Truncated bool
	index     map[string]int
	limit     int
}

func newStringSet(limit int) *StringSet {
	return &StringSet{index: make(map[string]int), limit: limit}
}

func (s *StringSet) add(value string, offset int64, encoding string) {
	if encoding == EncodingASCII {
		s.ASCIIHits++
	} else {
		s.WideHits++
	}
	if i, ok := s.index[value]; ok {
		fs := &s.Strings[i]
		fs.Count++
		if offset < fs.Offset {
			fs.Offset = offset
			fs.Encoding = encoding
		}
		return
	}
	if s.limit > 0 && len(s.Strings) >= s.limit {
		s.Truncated = true
		return
	}
	s.index[value] = len(s.Strings)
	s.Strings = append(s.Strings, FoundString{Value: value, Offset: offset, Encoding: encoding, Count: 1})
}

func (s *StringSet) sort() {
	sort.SliceStable(s.Strings, func(i, j int) bool { return s.Strings[i].Offset < s.Strings[j].Offset })
	for i, fs := range s.Strings {
		s.index[fs.Value] = i
	}
}

// Values returns the distinct strings in offset order.
func (s *StringSet) Values() []string {
	out := make([]string, len(s.Strings))
	for i, fs := range s.Strings {
		out[i] = fs.Value
	}
	return out
}

// Lookup returns the record of value.
func (s *StringSet) Lookup(value string) (FoundString, bool) {
	i, ok := s.index[value]
	if !ok {
		return FoundString{}, false
	}
	return s.Strings[i], true
}

func isPrintable(b byte) bool { return b >= 0x20 && b <= 0x7e }

// asciiRuns accumulates maximal printable runs across chunk boundaries.
type asciiRuns struct {
	min   int
	run   []byte
	start int64
	emit  func(string, int64)
}

func (r *asciiRuns) feed(offset int64, chunk []byte) {
	for i, b := range chunk {
		if isPrintable(b) {
			if len(r.run) == 0 {
				r.start = offset + int64(i)
			}
			r.run = append(r.run, b)
			continue
		}
		r.flush()
	}
}

func (r *asciiRuns) flush() {
	if len(r.run) >= r.min {
		r.emit(string(r.run), r.start)
	}
	r.run = r.run[:0]
}

// wideRuns accumulates maximal runs of (printable, 0x00) pairs. A
// printable byte is held as pending until the following byte shows
// whether it completes a pair.
type wideRuns struct {
	min        int
	run        []byte
	start      int64
	pending    byte
	pendingAt  int64
	hasPending bool
	emit       func(string, int64)
}

func (r *wideRuns) feed(offset int64, chunk []byte) {
	for i, b := range chunk {
		pos := offset + int64(i)
		if r.hasPending {
			r.hasPending = false
			if b == 0 {
				if len(r.run) == 0 {
					r.start = r.pendingAt
				}
				r.run = append(r.run, r.pending)
				continue
			}
			// the pair broke; b may still open a new run
			r.flush()
		}
		if isPrintable(b) {
			r.pending, r.pendingAt, r.hasPending = b, pos, true
			continue
		}
		r.flush()
	}
}

func (r *wideRuns) flush() {
	// every unit is printable ASCII, so decoding UTF-16LE keeps the bytes
	if len(r.run) >= r.min {
		r.emit(string(r.run), r.start)
	}
	r.run = r.run[:0]
}

// ScanStrings runs both passes over the whole dump. Runs end only at a
// non-matching byte or at EOF, so every string is maximal. Memory is bounded
// by the distinct-string cap, not by a byte window.
func ScanStrings(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext) (*StringSet, error) {
	set := newStringSet(ec.MaxDistinctStrings())
	ascii := &asciiRuns{min: ec.MinStringLength(), emit: func(s string, off int64) { set.add(s, off, EncodingASCII) }}
	wide := &wideRuns{min: ec.MinStringLength(), emit: func(s string, off int64) { set.add(s, off, EncodingWide) }}

	err := forEachChunk(ctx, acc, acc.Size(), ec.ChunkSize(), 0, func(offset int64, chunk []byte) bool {
		ascii.feed(offset, chunk)
		wide.feed(offset, chunk)
		return true
	})
	if err != nil {
		return nil, err
	}
	ascii.flush()
	wide.hasPending = false
	wide.flush()
	set.sort()
	return set, nil
}
