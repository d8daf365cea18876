package extractor

import (
	"context"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/collections"
	"github.com/dump-sleuth/pkg/model"
)

// StringsModule extracts ASCII and UTF-16LE strings, categorizes them and
// collects shape signals.
type StringsModule struct{ info }

// NewStringsModule creates the strings module.
func NewStringsModule() *StringsModule {
	return &StringsModule{info{name: NameStrings, priority: 20}}
}

// Analyze implements plugin.Module.
func (m *StringsModule) Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, _ model.DumpMetadata) (*plugin.Output, error) {
	set, err := ScanStrings(ctx, acc, ec)
	if err != nil {
		return nil, err
	}

	categorizer := NewCategorizer(ec)
	signals := NewSignals(ec.SignalCap())
	buckets := make(map[string][]FoundString)
	counter := collections.NewCounter[string]()
	var flagged []FoundString

	for i, fs := range set.Strings {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		signals.Scan(fs.Value)
		if len(flagged) < ec.CategoryCap() && IsInteresting(fs.Value) {
			flagged = append(flagged, fs)
		}
		name, ok := categorizer.Categorize(fs.Value)
		if !ok || len(buckets[name]) >= ec.CategoryCap() {
			continue
		}
		buckets[name] = append(buckets[name], fs)
		counter.Add(fs.Value, fs.Count)
	}

	truncate := func(s string) string {
		if len(s) > ec.MaxStringLength() {
			return s[:ec.MaxStringLength()]
		}
		return s
	}

	categorized := model.NewMap()
	breakdown := model.NewMap()
	var artifacts []model.ArtifactRecord
	total := 0
	for _, name := range CategoryNames() {
		if !ec.CategoryAllowed(name) {
			continue
		}
		values := make([]string, len(buckets[name]))
		for i, fs := range buckets[name] {
			values[i] = truncate(fs.Value)
			artifacts = append(artifacts, model.NewArtifact(name, values[i], fs.Offset))
		}
		categorized.Set(name, model.Strings(values))
		breakdown.Set(name, model.Int(len(values)))
		total += len(values)
	}

	flags := make([]string, len(flagged))
	for i, fs := range flagged {
		flags[i] = truncate(fs.Value)
	}

	var common []model.Value
	for _, e := range counter.MostCommon(20) {
		s := e.Value
		if len(s) > 100 {
			s = s[:100]
		}
		common = append(common, model.Object(model.NewMap().
			Set("string", model.Str(s)).
			Set("count", model.Int(e.Count))))
	}

	stats := model.NewMap().
		Set("total_categorized", model.Int(total)).
		Set("categories_breakdown", model.Object(breakdown)).
		Set("patterns_found", model.Object(model.NewMap().
			Set("ip_addresses", model.Int(signals.IPs.Len())).
			Set("email_addresses", model.Int(signals.Emails.Len())).
			Set("potential_credentials", model.Int(len(buckets["credentials"]))).
			Set("urls", model.Int(len(buckets["urls"]))).
			Set("commands", model.Int(len(buckets["commands"]))))).
		Set("most_common_strings", model.List(common...))

	data := model.NewMap().
		Set("total_strings", model.Int(len(set.Strings))).
		Set("truncated", model.Bool(set.Truncated)).
		Set("categorized", model.Object(categorized)).
		Set("interesting_flags", model.Strings(flags)).
		Set("patterns", signals.Value()).
		Set("statistics", model.Object(stats)).
		Set("encoding_distribution", model.Object(model.NewMap().
			Set("ascii", model.Int(set.ASCIIHits)).
			Set("unicode", model.Int(set.WideHits)))).
		Set("max_string_length", model.Int(ec.MaxStringLength()))

	return &plugin.Output{Data: model.Object(data), Artifacts: artifacts}, nil
}
