package repository

import (
	"database/sql/driver"
	"errors"
	"time"
)

// AnalysisRun is one persisted run. Report holds the full JSON report.
type AnalysisRun struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string    `gorm:"column:run_id;type:varchar(64);uniqueIndex"`
	ToolVersion  string    `gorm:"column:tool_version;type:varchar(32)"`
	DumpPath     string    `gorm:"column:dump_path;type:varchar(1024)"`
	DumpName     string    `gorm:"column:dump_name;type:varchar(255);index"`
	DumpSize     int64     `gorm:"column:dump_size"`
	Format       string    `gorm:"column:format;type:varchar(32)"`
	AccessMode   string    `gorm:"column:access_mode;type:varchar(16)"`
	ModuleCount  int       `gorm:"column:module_count"`
	ErrorCount   int       `gorm:"column:error_count"`
	WarningCount int       `gorm:"column:warning_count"`
	ReportURL    string    `gorm:"column:report_url;type:varchar(1024)"`
	Report       JSONField `gorm:"column:report;type:json"`
	AnalyzedAt   time.Time `gorm:"column:analyzed_at;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for AnalysisRun.
func (AnalysisRun) TableName() string {
	return "analysis_runs"
}

// ModuleOutcome is one module's result within a run.
type ModuleOutcome struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         string    `gorm:"column:run_id;type:varchar(64);index"`
	Module        string    `gorm:"column:module;type:varchar(64)"`
	Success       bool      `gorm:"column:success"`
	ErrorMessage  string    `gorm:"column:error_message;type:text"`
	ErrorCategory string    `gorm:"column:error_category;type:varchar(32)"`
	DurationMS    float64   `gorm:"column:duration_ms"`
	ArtifactCount int       `gorm:"column:artifact_count"`
	Data          JSONField `gorm:"column:data;type:json"`
}

// TableName returns the table name for ModuleOutcome.
func (ModuleOutcome) TableName() string {
	return "module_results"
}

// Artifact is one indexed artifact, searchable across runs.
type Artifact struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID    string `gorm:"column:run_id;type:varchar(64);index"`
	Module   string `gorm:"column:module;type:varchar(64)"`
	Category string `gorm:"column:category;type:varchar(64);index"`
	Value    string `gorm:"column:value;type:text"`
	Offset   int64  `gorm:"column:file_offset"`
	Detail   string `gorm:"column:detail;type:varchar(255)"`
	Risk     string `gorm:"column:risk;type:varchar(16)"`
}

// TableName returns the table name for Artifact.
func (Artifact) TableName() string {
	return "artifacts"
}

// AllModels lists every table for migration.
func AllModels() []interface{} {
	return []interface{}{&AnalysisRun{}, &ModuleOutcome{}, &Artifact{}}
}

// JSONField stores raw JSON in a json/text column.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("unsupported type for JSONField")
	}
	return nil
}

// MarshalJSON emits the stored JSON as is.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}
