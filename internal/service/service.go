// Package service wires the analyzer to report output: local files,
// compression, object storage upload and database persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dump-sleuth/internal/analyzer"
	"github.com/dump-sleuth/internal/repository"
	"github.com/dump-sleuth/internal/storage"
	"github.com/dump-sleuth/pkg/compression"
	"github.com/dump-sleuth/pkg/config"
	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/utils"
	"github.com/dump-sleuth/pkg/writer"
)

// Option customizes a Service.
type Option func(*Service)

// WithStorage uses store instead of the configured backend.
func WithStorage(store storage.Storage) Option {
	return func(s *Service) { s.storage = store }
}

// WithRepositories uses repos instead of connecting to the configured
// database.
func WithRepositories(repos *repository.Repositories) Option {
	return func(s *Service) { s.db = repos }
}

// WithAnalyzerOptions passes options through to the analyzer.
func WithAnalyzerOptions(opts ...analyzer.Option) Option {
	return func(s *Service) { s.analyzerOpts = append(s.analyzerOpts, opts...) }
}

// Service runs analyses and publishes their reports.
type Service struct {
	config *config.Config
	logger utils.Logger

	analyzerOpts []analyzer.Option
	analyzer     *analyzer.DumpAnalyzer
	compressor   compression.Compressor
	writer       *writer.JSONWriter[*model.AggregateResult]
	storage      storage.Storage
	db           *repository.Repositories
}

// Published describes where one report went.
type Published struct {
	RunID      string
	ReportPath string
	ReportKey  string
	ReportURL  string
	Persisted  bool
	Write      *writer.WriteResult
}

// New creates a Service. Call Initialize before use.
func New(cfg *config.Config, logger utils.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{config: cfg, logger: utils.OrNull(logger)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize builds the analyzer and the output components the
// configuration asks for.
func (s *Service) Initialize(ctx context.Context) error {
	a, err := analyzer.New(s.config, append([]analyzer.Option{analyzer.WithLogger(s.logger)}, s.analyzerOpts...)...)
	if err != nil {
		return err
	}
	s.analyzer = a

	comp, err := compression.FromConfig(s.config.Output.Compress)
	if err != nil {
		return apperrors.Config("invalid output.compress", err)
	}
	s.compressor = comp
	s.writer = writer.NewReportWriter[*model.AggregateResult](comp)

	if s.config.Output.Upload && s.storage == nil {
		if err := s.initStorage(); err != nil {
			return err
		}
	}
	if s.config.Output.Persist && s.db == nil {
		if err := s.initDatabase(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) initStorage() error {
	s.logger.Info("initializing storage (%s)", s.config.Storage.Type)
	store, err := storage.NewStorage(&s.config.Storage)
	if err != nil {
		return err
	}
	s.storage = store
	return nil
}

func (s *Service) initDatabase(ctx context.Context) error {
	s.logger.Info("connecting to database (%s)", s.config.Database.Type)
	gormDB, err := repository.NewGormDB(&s.config.Database)
	if err != nil {
		return err
	}
	repos, err := repository.NewRepositories(ctx, gormDB)
	if err != nil {
		return err
	}
	s.db = repos
	return nil
}

// Analyzer returns the configured analyzer.
func (s *Service) Analyzer() *analyzer.DumpAnalyzer { return s.analyzer }

// AnalyzeFile analyzes one dump and publishes its report. The result is
// returned even when publishing fails.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (*model.AggregateResult, *Published, error) {
	if s.analyzer == nil {
		return nil, nil, errors.New("service not initialized")
	}
	result, err := s.analyzer.Analyze(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	pub, err := s.Publish(ctx, result)
	return result, pub, err
}

// BatchItem pairs a batch entry with its published report.
type BatchItem struct {
	analyzer.BatchItem
	Published  *Published
	PublishErr error
}

// AnalyzeDir runs a batch and publishes every successful report.
func (s *Service) AnalyzeDir(ctx context.Context, dir string, opts analyzer.BatchOptions) ([]BatchItem, error) {
	if s.analyzer == nil {
		return nil, errors.New("service not initialized")
	}
	batch, err := s.analyzer.Batch(ctx, dir, opts)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(batch.Items))
	for i, it := range batch.Items {
		items[i] = BatchItem{BatchItem: it}
		if it.Err != nil || it.Result == nil {
			continue
		}
		items[i].Published, items[i].PublishErr = s.Publish(ctx, it.Result)
	}
	return items, nil
}

// Publish writes the report under output.dir, then uploads and persists
// it when configured. Every step that completed is reflected in the
// returned Published, also on error.
func (s *Service) Publish(ctx context.Context, result *model.AggregateResult) (*Published, error) {
	if s.writer == nil {
		return nil, errors.New("service not initialized")
	}
	meta := result.Metadata()
	log := s.logger.WithFields(map[string]interface{}{"run_id": meta.RunID, "dump": meta.Dump.FileName})
	pub := &Published{RunID: meta.RunID}

	if err := s.config.EnsureOutputDir(); err != nil {
		return pub, apperrors.Storage("cannot create output directory", err)
	}
	name := ReportFileName(meta, s.writer.Extension())
	pub.ReportPath = filepath.Join(s.config.Output.Dir, name)

	wr, err := s.writer.WriteToFile(result, pub.ReportPath)
	if err != nil {
		return pub, apperrors.Storage("cannot write report", err)
	}
	pub.Write = wr
	log.Info("report written to %s (%d bytes, %s)", pub.ReportPath, wr.CompressedSize, s.compressor.Name())

	if s.config.Output.Upload && s.storage != nil {
		key := storage.ReportKey(reportDate(meta.Timestamp), meta.RunID, name)
		if err := s.storage.UploadFile(ctx, key, pub.ReportPath); err != nil {
			return pub, err
		}
		pub.ReportKey = key
		pub.ReportURL = s.storage.GetURL(key)
		log.Info("report uploaded to %s", pub.ReportURL)
	}

	if s.config.Output.Persist && s.db != nil {
		url := pub.ReportURL
		if url == "" {
			url = pub.ReportPath
		}
		if err := s.db.Runs.SaveRun(ctx, result, url); err != nil {
			return pub, err
		}
		pub.Persisted = true
		log.Debug("run persisted")
	}
	return pub, nil
}

// ReportFileName is <dump name>-<run id><ext>.
func ReportFileName(meta model.RunMetadata, ext string) string {
	base := strings.TrimSuffix(meta.Dump.FileName, filepath.Ext(meta.Dump.FileName))
	if base == "" {
		base = "report"
	}
	return fmt.Sprintf("%s-%s%s", base, meta.RunID, ext)
}

func reportDate(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02")
}

// Repositories returns the database repositories, nil unless persisting.
func (s *Service) Repositories() *repository.Repositories { return s.db }

// HealthCheck verifies the database connection when one is open.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			return apperrors.Database("database health check failed", err)
		}
	}
	return nil
}

// Close releases the compressor and the database connection.
func (s *Service) Close() error {
	if s.compressor != nil {
		compression.Close(s.compressor)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("failed to close database connection: %v", err)
			return err
		}
	}
	return nil
}
