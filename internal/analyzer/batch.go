package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/parallel"
)

// BatchOptions selects the files of a batch run.
type BatchOptions struct {
	// Pattern is matched against base names. Default: "*".
	Pattern   string
	Recursive bool
	// Workers bounds concurrent runs. Default: 1.
	Workers int
}

// BatchItem is the outcome of one file.
type BatchItem struct {
	Path     string
	Result   *model.AggregateResult
	Err      error
	Duration time.Duration
}

// BatchResult holds one item per matched file, in path order.
type BatchResult struct {
	Items []BatchItem
	// Stats are the worker pool's timings for the run.
	Stats parallel.PoolMetrics
}

// Succeeded counts files that produced a report.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, it := range b.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts files that did not.
func (b *BatchResult) Failed() int { return len(b.Items) - b.Succeeded() }

// FindDumps lists the regular files under dir whose base name matches
// pattern, sorted. Subdirectories are walked only when recursive is set.
func FindDumps(dir, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, apperrors.Config(fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperrors.Access("cannot read batch directory", err)
	}
	if !info.IsDir() {
		return nil, apperrors.Config(fmt.Sprintf("%s is not a directory", dir), nil)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Access("cannot walk batch directory", err)
	}
	sort.Strings(files)
	return files, nil
}

// Batch analyzes every matching file under dir. A file that fails setup
// is reported in its item and never stops the others.
func (a *DumpAnalyzer) Batch(ctx context.Context, dir string, opts BatchOptions) (*BatchResult, error) {
	files, err := FindDumps(dir, opts.Pattern, opts.Recursive)
	if err != nil {
		return nil, err
	}
	a.log.Info("batch: %d files under %s", len(files), dir)

	cfg := parallel.DefaultPoolConfig().WithWorkers(max(1, opts.Workers)).WithMetrics()
	pool := parallel.NewWorkerPool[string, *model.AggregateResult](cfg)
	results := pool.ExecuteFunc(ctx, files, a.Analyze)

	out := &BatchResult{Items: make([]BatchItem, len(results)), Stats: pool.Metrics()}
	for i, r := range results {
		out.Items[i] = BatchItem{Path: r.Input, Result: r.Result, Err: r.Error, Duration: r.Duration}
		if r.Error != nil {
			a.log.WithField("dump", filepath.Base(r.Input)).Warn("batch item failed: %v", r.Error)
		}
	}
	a.log.Info("batch finished: %d succeeded, %d failed", out.Succeeded(), out.Failed())
	if len(files) > 0 {
		a.log.Debug("batch timing: total %v, avg %v, max %v", out.Stats.TotalDuration, out.Stats.AvgTaskTime, out.Stats.MaxTaskTime)
	}
	return out, nil
}
