package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
)

// DefaultListLimit caps ListRuns and FindArtifacts when no limit is given.
const DefaultListLimit = 100

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// SaveRun writes the run row, one row per module and one per artifact in
// a single transaction. Saving the same run id twice fails.
func (r *GormRunRepository) SaveRun(ctx context.Context, result *model.AggregateResult, reportURL string) error {
	report, err := json.Marshal(result)
	if err != nil {
		return apperrors.Database("failed to encode report", err)
	}

	meta := result.Metadata()
	run := &AnalysisRun{
		RunID:        meta.RunID,
		ToolVersion:  meta.ToolVersion,
		DumpPath:     meta.Dump.FilePath,
		DumpName:     meta.Dump.FileName,
		DumpSize:     meta.Dump.FileSize,
		Format:       string(meta.Dump.Format),
		AccessMode:   string(meta.Dump.AccessMode),
		ErrorCount:   len(result.Errors()),
		WarningCount: len(result.Warnings()),
		ReportURL:    reportURL,
		Report:       report,
		AnalyzedAt:   meta.Timestamp,
	}

	var outcomes []ModuleOutcome
	var artifacts []Artifact
	for _, name := range result.ModuleNames() {
		pr, _ := result.Result(name)
		outcome, err := toOutcome(meta.RunID, pr)
		if err != nil {
			return err
		}
		outcomes = append(outcomes, outcome)
		for _, a := range pr.Artifacts {
			artifacts = append(artifacts, Artifact{
				RunID:    meta.RunID,
				Module:   name,
				Category: a.Category,
				Value:    a.Value,
				Offset:   a.Offset,
				Detail:   a.Detail,
				Risk:     string(a.Risk),
			})
		}
	}
	run.ModuleCount = len(outcomes)

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(outcomes) > 0 {
			if err := tx.Create(&outcomes).Error; err != nil {
				return err
			}
		}
		if len(artifacts) > 0 {
			if err := tx.CreateInBatches(&artifacts, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Database(fmt.Sprintf("failed to save run %s", meta.RunID), err)
	}
	return nil
}

func toOutcome(runID string, pr model.PluginResult) (ModuleOutcome, error) {
	o := ModuleOutcome{
		RunID:         runID,
		Module:        pr.Name,
		Success:       pr.Success,
		ErrorMessage:  pr.Error,
		ErrorCategory: pr.ErrorCategory,
		DurationMS:    float64(pr.Duration.Microseconds()) / 1000,
		ArtifactCount: len(pr.Artifacts),
	}
	if !pr.Data.IsNull() {
		data, err := json.Marshal(pr.Data)
		if err != nil {
			return o, apperrors.Database(fmt.Sprintf("failed to encode %s data", pr.Name), err)
		}
		o.Data = data
	}
	return o, nil
}

// GetRun returns the run with runID.
func (r *GormRunRepository) GetRun(ctx context.Context, runID string) (*AnalysisRun, error) {
	var run AnalysisRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Database(fmt.Sprintf("run %s", runID), ErrRunNotFound)
		}
		return nil, apperrors.Database("failed to get run", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs without their report bodies.
func (r *GormRunRepository) ListRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	var runs []AnalysisRun
	err := r.db.WithContext(ctx).
		Omit("report").
		Order("analyzed_at DESC").
		Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&runs).Error
	if err != nil {
		return nil, apperrors.Database("failed to list runs", err)
	}
	return runs, nil
}

// GetModuleResults returns a run's module outcomes.
func (r *GormRunRepository) GetModuleResults(ctx context.Context, runID string) ([]ModuleOutcome, error) {
	var outcomes []ModuleOutcome
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("module").
		Find(&outcomes).Error
	if err != nil {
		return nil, apperrors.Database("failed to get module results", err)
	}
	return outcomes, nil
}

// FindArtifacts searches artifacts in insertion order.
func (r *GormRunRepository) FindArtifacts(ctx context.Context, q ArtifactQuery) ([]Artifact, error) {
	tx := r.db.WithContext(ctx).Model(&Artifact{})
	if q.RunID != "" {
		tx = tx.Where("run_id = ?", q.RunID)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.Risk != model.RiskNone {
		tx = tx.Where("risk = ?", string(q.Risk))
	}
	if q.Contains != "" {
		tx = tx.Where("value LIKE ?", "%"+q.Contains+"%")
	}

	var artifacts []Artifact
	if err := tx.Order("id").Limit(normalizeLimit(q.Limit)).Find(&artifacts).Error; err != nil {
		return nil, apperrors.Database("failed to find artifacts", err)
	}
	return artifacts, nil
}

// DeleteRun removes the run, its outcomes and artifacts.
func (r *GormRunRepository) DeleteRun(ctx context.Context, runID string) error {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&Artifact{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", runID).Delete(&ModuleOutcome{}).Error; err != nil {
			return err
		}
		res := tx.Where("run_id = ?", runID).Delete(&AnalysisRun{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return apperrors.Database(fmt.Sprintf("failed to delete run %s", runID), err)
	}
	if deleted == 0 {
		return apperrors.Database(fmt.Sprintf("run %s", runID), ErrRunNotFound)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
