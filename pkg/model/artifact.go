package model

// RiskLevel is the heuristic severity attached to persistence findings.
type RiskLevel string

const (
	RiskNone   RiskLevel = ""
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// NoOffset marks a finding without a single source offset.
const NoOffset int64 = -1

// ArtifactRecord is one typed finding produced by an extraction module.
type ArtifactRecord struct {
	Category string    `json:"category"`
	Value    string    `json:"value"`
	Offset   int64     `json:"offset"`
	Detail   string    `json:"detail,omitempty"` // IP class, persistence type, ...
	Risk     RiskLevel `json:"risk,omitempty"`
}

// NewArtifact creates an artifact record without a risk level.
func NewArtifact(category, value string, offset int64) ArtifactRecord {
	return ArtifactRecord{Category: category, Value: value, Offset: offset}
}

// WithDetail returns a copy of the record carrying detail.
func (a ArtifactRecord) WithDetail(detail string) ArtifactRecord {
	a.Detail = detail
	return a
}

// WithRisk returns a copy of the record carrying the given risk.
func (a ArtifactRecord) WithRisk(risk RiskLevel) ArtifactRecord {
	a.Risk = risk
	return a
}
