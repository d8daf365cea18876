package extractor

import (
	"context"
	"regexp"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/collections"
	"github.com/dump-sleuth/pkg/model"
)

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var sweepPatterns = []namedPattern{
	{"urls", regexp.MustCompile("(?i)https?://[^\\s<>\"'`]+")},
	{"ip_addresses", regexp.MustCompile(`(?i)\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)},
	{"email_addresses", regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"file_paths", regexp.MustCompile(`(?i)[A-Za-z]:\\[^<>:"|?*\n\r]+|/[\w./-]+`)},
	{"registry_keys", regexp.MustCompile(`(?i)HKEY_[A-Z_]+\\[^<>:"|?*\n\r]+`)},
	{"passwords", regexp.MustCompile(`(?i)password\s*=\s*\S+`)},
	{"crypto_keys", regexp.MustCompile(`(?i)-----BEGIN (?:RSA|DSA|EC|PGP) PRIVATE KEY-----`)},
}

// PatternsModule sweeps the decoded scan window with a fixed regex set.
type PatternsModule struct{ info }

// NewPatternsModule creates the patterns module.
func NewPatternsModule() *PatternsModule {
	return &PatternsModule{info{name: NamePatterns, priority: 15}}
}

// Analyze implements plugin.Module. Only the include filter applies here:
// an empty include list sweeps every pattern.
func (m *PatternsModule) Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, _ model.DumpMetadata) (*plugin.Output, error) {
	text, err := readText(ctx, acc, ec)
	if err != nil {
		return nil, err
	}

	include := make(map[string]bool)
	for _, name := range ec.IncludeCategories() {
		include[name] = true
	}

	matches := model.NewMap()
	summary := model.NewMap()
	var artifacts []model.ArtifactRecord
	for _, p := range sweepPatterns {
		if len(include) > 0 && !include[p.name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := collections.NewOrderedSet[string](ec.SignalCap())
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			v := text[loc[0]:loc[1]]
			if found.Add(v) {
				artifacts = append(artifacts, model.NewArtifact(p.name, v, int64(loc[0])))
			}
			if found.Full() {
				break
			}
		}
		matches.Set(p.name, model.Strings(found.Items()))
		summary.Set(p.name, model.Int(found.Len()))
	}

	data := model.NewMap().
		Set("matches", model.Object(matches)).
		Set("summary", model.Object(summary))
	return &plugin.Output{Data: model.Object(data), Artifacts: artifacts}, nil
}
