// Package analyzer runs the extraction modules over dump files. A
// DumpAnalyzer holds one validated configuration snapshot and can serve
// any number of runs, one file per run.
package analyzer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dump-sleuth/internal/dump"
	"github.com/dump-sleuth/internal/extractor"
	"github.com/dump-sleuth/internal/plugin"
	"github.com/dump-sleuth/pkg/config"
	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/filter"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/telemetry"
	"github.com/dump-sleuth/pkg/utils"
)

// DefaultToolVersion is reported when no version is set.
const DefaultToolVersion = "dev"

// Option configures a DumpAnalyzer.
type Option func(*DumpAnalyzer)

// WithLogger sets the logger shared by the analyzer and its modules.
func WithLogger(logger utils.Logger) Option {
	return func(a *DumpAnalyzer) { a.log = utils.OrNull(logger) }
}

// WithVersion sets the tool version written into run metadata.
func WithVersion(version string) Option {
	return func(a *DumpAnalyzer) {
		if version != "" {
			a.version = version
		}
	}
}

// WithRegistry replaces the built-in module set. modules.enabled still
// selects from it.
func WithRegistry(registry *plugin.Registry) Option {
	return func(a *DumpAnalyzer) { a.registry = registry }
}

// WithClock overrides the run timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *DumpAnalyzer) { a.now = now }
}

// DumpAnalyzer owns analysis runs for one configuration snapshot.
type DumpAnalyzer struct {
	cfg      *config.Config
	ec       *model.ExtractionContext
	open     dump.OpenOptions
	registry *plugin.Registry
	orch     *plugin.Orchestrator
	log      utils.Logger
	version  string
	now      func() time.Time
}

// New validates cfg and resolves the enabled modules. Every failure is a
// ConfigurationError, so nothing is scanned with a bad configuration.
func New(cfg *config.Config, opts ...Option) (*DumpAnalyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &DumpAnalyzer{
		cfg:     cfg,
		log:     &utils.NullLogger{},
		version: DefaultToolVersion,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	ec, err := cfg.ExtractionContext()
	if err != nil {
		return nil, err
	}
	sizes, err := cfg.Analysis.Sizes()
	if err != nil {
		return nil, err
	}

	if a.registry == nil {
		pf := filter.NewProcessFilter()
		pf.AddService(cfg.Analysis.ServiceNames...)
		a.registry, err = extractor.DefaultRegistry(a.log, pf)
		if err != nil {
			return nil, apperrors.Config("cannot build module registry", err)
		}
	}
	selected, err := a.registry.Select(cfg.Modules.Enabled)
	if err != nil {
		return nil, apperrors.Config("invalid modules.enabled", err)
	}

	a.ec = ec
	a.registry = selected
	a.orch = plugin.NewOrchestrator(selected, plugin.Options{
		Parallel:   cfg.Analysis.Parallel,
		MaxWorkers: cfg.Analysis.MaxWorkers,
		Logger:     a.log,
	})
	a.open = dump.OpenOptions{
		MaxFileSize:   sizes.MaxFileSize,
		UseMmap:       cfg.Analysis.UseMmap,
		MmapThreshold: sizes.MmapThreshold,
		RecoveryMode:  cfg.Analysis.RecoveryMode,
		Logger:        a.log,
	}
	return a, nil
}

// Modules returns the enabled modules in run order.
func (a *DumpAnalyzer) Modules() []plugin.Module { return a.registry.Ordered() }

// ExtractionContext returns the snapshot handed to every module.
func (a *DumpAnalyzer) ExtractionContext() *model.ExtractionContext { return a.ec }

// Analyze runs every enabled module over the dump at path.
//
// Setup failures are returned as AccessErrors unless recovery mode is on,
// in which case they are recorded under the parser module and the modules
// run against an empty dump. Once setup succeeds a frozen result is always
// returned, whatever the modules do.
func (a *DumpAnalyzer) Analyze(ctx context.Context, path string) (*model.AggregateResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "analyzer.analyze")
	defer span.End()

	runID := uuid.NewString()
	log := a.log.WithFields(map[string]interface{}{
		"run_id": runID,
		"dump":   filepath.Base(path),
	})
	span.SetAttributes(attribute.String("run.id", runID), attribute.String("dump.path", path))

	h, err := dump.Open(path, a.open)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("setup failed: %v", err)
		return nil, err
	}
	defer h.Close()

	meta := h.Metadata()
	span.SetAttributes(
		attribute.String("dump.format", string(meta.Format)),
		attribute.Int64("dump.size", meta.FileSize),
	)
	agg := model.NewAggregateResult(model.RunMetadata{
		RunID:       runID,
		ToolVersion: a.version,
		Timestamp:   a.now(),
		Dump:        meta,
	})

	for _, w := range h.Warnings() {
		_ = agg.AddWarning(dump.ParserModule, w)
	}
	if setupErr := h.SetupError(); setupErr != nil {
		_ = agg.AddError(dump.ParserModule, apperrors.GetErrorMessage(setupErr), apperrors.GetCategory(setupErr))
	}

	start := a.now()
	log.Info("analyzing %d bytes as %s with %d modules", meta.FileSize, meta.Format, a.registry.Len())
	a.orch.Run(ctx, h.Accessor(), a.ec, meta, agg)
	agg.Freeze()

	log.Info("analysis finished in %s: %d modules, %d errors, %d warnings",
		a.now().Sub(start).Round(time.Millisecond), len(agg.ModuleNames()), len(agg.Errors()), len(agg.Warnings()))
	return agg, nil
}
