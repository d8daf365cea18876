package plugin

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dump-sleuth/internal/dump"
	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/parallel"
	"github.com/dump-sleuth/pkg/telemetry"
	"github.com/dump-sleuth/pkg/utils"
)

// DefaultMaxWorkers is the concurrent pool size when none is configured.
const DefaultMaxWorkers = 4

// Options configures an Orchestrator.
type Options struct {
	// Parallel runs modules on a worker pool instead of one at a time.
	Parallel bool
	// MaxWorkers bounds the pool. Default: 4.
	MaxWorkers int
	Logger     utils.Logger
}

// Orchestrator runs every registered module over one dump and records
// exactly one PluginResult per module.
type Orchestrator struct {
	registry *Registry
	opts     Options
	log      utils.Logger
}

// NewOrchestrator creates an orchestrator over registry.
func NewOrchestrator(registry *Registry, opts Options) *Orchestrator {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	return &Orchestrator{
		registry: registry,
		opts:     opts,
		log:      utils.OrNull(opts.Logger),
	}
}

// Run executes the modules and writes their outcomes into agg.
//
// Modules that reject the dump format get an Unsupported failure and a
// warning. Errors, panics and timeouts inside a module are recorded
// against that module only. In sequential mode modules run by descending
// priority; in parallel mode they complete in any order. All writes to agg
// happen on the calling goroutine.
func (o *Orchestrator) Run(ctx context.Context, acc dump.Accessor, ec *model.ExtractionContext, meta model.DumpMetadata, agg *model.AggregateResult) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("dump.format", string(meta.Format)),
		attribute.Bool("orchestrator.parallel", o.opts.Parallel),
	)

	var runnable []Module
	for _, m := range o.registry.Ordered() {
		if Supports(m, meta.Format) {
			runnable = append(runnable, m)
			continue
		}
		msg := fmt.Sprintf("format %s not supported by module", meta.Format)
		o.record(agg, model.Failed(m.Name(), apperrors.ErrUnsupported.Category(), msg, 0))
		o.warn(agg, m.Name(), msg)
	}
	if len(runnable) == 0 {
		return
	}

	workers := 1
	if o.opts.Parallel {
		workers = o.opts.MaxWorkers
	}
	pool := parallel.NewWorkerPool[Module, *Output](parallel.PoolConfig{
		MaxWorkers:  workers,
		TaskTimeout: ec.ModuleTimeout(),
	})

	tasks := make([]parallel.Task[Module, *Output], len(runnable))
	for i, m := range runnable {
		tasks[i] = parallel.NewTask(m, func(ctx context.Context, m Module) (*Output, error) {
			return o.analyze(ctx, m, acc, ec, meta)
		})
	}

	pool.ExecuteWithCallback(ctx, tasks, func(_ int, r parallel.TaskResult[Module, *Output]) {
		name := r.Input.Name()
		log := o.log.WithField("module", name)

		if r.Error != nil {
			category, msg := classify(r.Error)
			log.Warn("module failed after %s: [%s] %s", r.Duration, category, msg)
			o.record(agg, model.Failed(name, category, msg, r.Duration))
			if err := agg.AddError(name, msg, category); err != nil {
				log.Error("cannot record error: %v", err)
			}
			return
		}

		out := r.Result
		if out == nil {
			out = &Output{}
		}
		log.Info("module finished in %s with %d artifacts", r.Duration, len(out.Artifacts))
		o.record(agg, model.Succeeded(name, out.Data, out.Artifacts, r.Duration))
	})
}

func (o *Orchestrator) analyze(ctx context.Context, m Module, acc dump.Accessor, ec *model.ExtractionContext, meta model.DumpMetadata) (*Output, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "module."+m.Name())
	defer span.End()

	// a module abandoned on timeout keeps its lease until it returns, so
	// the dump stays mapped under it after Run is done
	release, ok := dump.Lease(acc)
	if !ok {
		return nil, apperrors.Access("dump closed before module started", nil)
	}
	defer release()

	o.log.WithField("module", m.Name()).Debug("module started")
	out, err := m.Analyze(ctx, acc, ec, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out != nil {
		span.SetAttributes(attribute.Int("module.artifacts", len(out.Artifacts)))
	}
	return out, nil
}

func (o *Orchestrator) record(agg *model.AggregateResult, r model.PluginResult) {
	if err := agg.SetResult(r); err != nil {
		o.log.WithField("module", r.Name).Error("cannot record result: %v", err)
	}
}

func (o *Orchestrator) warn(agg *model.AggregateResult, module, msg string) {
	o.log.WithField("module", module).Warn("%s", msg)
	if err := agg.AddWarning(module, msg); err != nil {
		o.log.WithField("module", module).Error("cannot record warning: %v", err)
	}
}

// classify maps a module failure to its report category and message.
func classify(err error) (category, message string) {
	var panicErr *parallel.PanicError
	switch {
	case errors.Is(err, parallel.ErrTaskTimeout):
		return apperrors.ErrTimeout.Category(), err.Error()
	case errors.As(err, &panicErr):
		return apperrors.ErrPlugin.Category(), fmt.Sprintf("panic: %v", panicErr.Value)
	case errors.Is(err, parallel.ErrTaskSkipped), errors.Is(err, context.Canceled):
		return apperrors.ErrPlugin.Category(), "not completed: run cancelled"
	case errors.Is(err, context.DeadlineExceeded), apperrors.IsTimeoutError(err):
		return apperrors.ErrTimeout.Category(), apperrors.GetErrorMessage(err)
	}
	// whatever a module returns is a plugin failure of that module
	return apperrors.ErrPlugin.Category(), apperrors.GetErrorMessage(err)
}
