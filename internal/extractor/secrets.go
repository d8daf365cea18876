package extractor

import (
	"context"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/collections"
	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/utils"
)

const secretCap = 50

// SecretsModule runs the gitleaks default rule set over the decoded scan
// window.
type SecretsModule struct {
	info
	log utils.Logger
}

// NewSecretsModule creates the secrets module.
func NewSecretsModule(logger utils.Logger) *SecretsModule {
	return &SecretsModule{
		info: info{name: NameSecrets, priority: 5},
		log:  utils.OrNull(logger).WithField("module", NameSecrets),
	}
}

// Redact keeps a short prefix of a secret for triage.
func Redact(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// Analyze implements plugin.Module.
func (m *SecretsModule) Analyze(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, _ model.DumpMetadata) (*plugin.Output, error) {
	text, err := readText(ctx, acc, ec)
	if err != nil {
		return nil, err
	}
	// NUL-separated memory reads better as lines; the swap keeps offsets
	text = strings.ReplaceAll(text, "\x00", "\n")

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, apperrors.Plugin("cannot load secret rules", err)
	}
	findings := detector.DetectString(text)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.log.Debug("%d raw findings", len(findings))

	seen := collections.NewOrderedSet[string](secretCap)
	rules := collections.NewCounter[string]()
	var list []model.Value
	var artifacts []model.ArtifactRecord
	for _, f := range findings {
		if !seen.Add(f.RuleID + "\x00" + f.Secret) {
			if seen.Full() {
				break
			}
			continue
		}
		offset := model.NoOffset
		if i := strings.Index(text, f.Secret); i >= 0 {
			offset = int64(i)
		}
		redacted := Redact(f.Secret)
		rules.Inc(f.RuleID)
		list = append(list, model.Object(model.NewMap().
			Set("rule_id", model.Str(f.RuleID)).
			Set("description", model.Str(f.Description)).
			Set("secret", model.Str(redacted)).
			Set("entropy", model.Float(round2(float64(f.Entropy)))).
			Set("offset", model.Int64(offset))))
		artifacts = append(artifacts, model.NewArtifact("secret", redacted, offset).
			WithDetail(f.RuleID).WithRisk(model.RiskHigh))
	}

	byRule := model.NewMap()
	for _, e := range rules.MostCommon(0) {
		byRule.Set(e.Value, model.Int(e.Count))
	}
	data := model.NewMap().
		Set("findings", model.List(list...)).
		Set("summary", model.Object(model.NewMap().
			Set("total_findings", model.Int(len(list))).
			Set("rules", model.Object(byRule))))
	return &plugin.Output{Data: model.Object(data), Artifacts: artifacts}, nil
}
