// Package repository persists analysis runs, module outcomes and artifacts
// with GORM.
package repository

import (
	"context"

	"github.com/dump-sleuth/pkg/model"
)

// RunRepository stores and queries analysis runs.
type RunRepository interface {
	// SaveRun stores a frozen report with its module outcomes and artifacts.
	SaveRun(ctx context.Context, result *model.AggregateResult, reportURL string) error

	// GetRun returns the run with runID.
	GetRun(ctx context.Context, runID string) (*AnalysisRun, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]AnalysisRun, error)

	// GetModuleResults returns a run's module outcomes ordered by module.
	GetModuleResults(ctx context.Context, runID string) ([]ModuleOutcome, error)

	// FindArtifacts searches stored artifacts.
	FindArtifacts(ctx context.Context, q ArtifactQuery) ([]Artifact, error)

	// DeleteRun removes a run and everything recorded for it.
	DeleteRun(ctx context.Context, runID string) error
}

// ArtifactQuery filters FindArtifacts. Empty fields match everything.
type ArtifactQuery struct {
	RunID    string
	Category string
	// Contains matches a substring of the artifact value.
	Contains string
	Risk     model.RiskLevel
	Limit    int
}
