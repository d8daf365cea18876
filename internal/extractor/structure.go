package extractor

import (
	"context"
	"encoding/hex"
	"math"
	"strconv"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/model"
)

const (
	magicBytes        = 16
	maxProfileBlocks  = 64
	minProfileBlock   = 4096
	highEntropyCutoff = 7.2
)

// ByteEntropy returns the Shannon entropy of b in bits per byte (0..8).
func ByteEntropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var counts [256]int
	for _, c := range b {
		counts[c]++
	}
	n := float64(len(b))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// StructureModule profiles the header and the entropy of the scan window.
type StructureModule struct{ info }

// NewStructureModule creates the structure module.
func NewStructureModule() *StructureModule {
	return &StructureModule{info{name: NameStructure, priority: 5}}
}

// Analyze implements plugin.Module.
func (m *StructureModule) Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, meta model.DumpMetadata) (*plugin.Output, error) {
	header := acc.Read(0, dump.HeaderWindow)
	nulls, printable := 0, 0
	for _, b := range header {
		switch {
		case b == 0:
			nulls++
		case isPrintable(b):
			printable++
		}
	}

	limit := scanLimit(acc, ec)
	blockSize := max(int64(minProfileBlock), (limit+maxProfileBlocks-1)/maxProfileBlocks)

	var blocks []model.Value
	var artifacts []model.ArtifactRecord
	var sum, peak float64
	high := 0
	err := forEachChunk(ctx, acc, limit, blockSize, 0, func(offset int64, block []byte) bool {
		e := ByteEntropy(block)
		sum += e
		peak = max(peak, e)
		flagged := e > highEntropyCutoff
		if flagged {
			high++
			artifacts = append(artifacts, model.NewArtifact("high_entropy_block",
				strconv.FormatFloat(round2(e), 'f', 2, 64), offset))
		}
		blocks = append(blocks, model.Object(model.NewMap().
			Set("offset", model.Int64(offset)).
			Set("size", model.Int(len(block))).
			Set("entropy", model.Float(round2(e))).
			Set("high_entropy", model.Bool(flagged))))
		return true
	})
	if err != nil {
		return nil, err
	}

	mean := 0.0
	if len(blocks) > 0 {
		mean = sum / float64(len(blocks))
	}
	magic := header[:min(len(header), magicBytes)]

	headerInfo := model.NewMap().
		Set("magic", model.Str(hex.EncodeToString(magic))).
		Set("format", model.Str(string(meta.Format))).
		Set("window", model.Int(len(header))).
		Set("entropy", model.Float(round2(ByteEntropy(header)))).
		Set("null_bytes", model.Int(nulls)).
		Set("printable_bytes", model.Int(printable))

	summary := model.NewMap().
		Set("blocks", model.Int(len(blocks))).
		Set("block_size", model.Int64(blockSize)).
		Set("high_entropy_blocks", model.Int(high)).
		Set("mean_entropy", model.Float(round2(mean))).
		Set("max_entropy", model.Float(round2(peak)))

	data := model.NewMap().
		Set("header", model.Object(headerInfo)).
		Set("block_profile", model.List(blocks...)).
		Set("summary", model.Object(summary))
	return &plugin.Output{Data: model.Object(data), Artifacts: artifacts}, nil
}
