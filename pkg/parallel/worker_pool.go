// Package parallel provides generic parallel processing utilities.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// ============================================================================
// Worker Pool Configuration
// ============================================================================

// PoolConfig configures the worker pool behavior.
type PoolConfig struct {
	// MaxWorkers is the maximum number of concurrent workers.
	// Default: min(runtime.NumCPU(), 8)
	MaxWorkers int

	// TaskBufferSize is the buffer size for the task channel.
	// Default: MaxWorkers * 2
	TaskBufferSize int

	// Timeout is the maximum time for the entire operation.
	// Default: 0 (no timeout)
	Timeout time.Duration

	// TaskTimeout bounds a single task. A task that overruns is abandoned:
	// its worker slot is released, its context is cancelled and its late
	// result is discarded.
	// Default: 0 (no timeout)
	TaskTimeout time.Duration

	// CollectMetrics enables collection of execution metrics.
	CollectMetrics bool
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 2 {
		workers = 2
	}
	return PoolConfig{
		MaxWorkers:     workers,
		TaskBufferSize: workers * 2,
	}
}

// WithWorkers returns a new config with the specified number of workers.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	c.MaxWorkers = n
	return c
}

// WithTimeout returns a new config with the specified timeout.
func (c PoolConfig) WithTimeout(d time.Duration) PoolConfig {
	c.Timeout = d
	return c
}

// WithTaskTimeout returns a new config with the specified per-task timeout.
func (c PoolConfig) WithTaskTimeout(d time.Duration) PoolConfig {
	c.TaskTimeout = d
	return c
}

// WithMetrics returns a new config with metrics collection enabled.
func (c PoolConfig) WithMetrics() PoolConfig {
	c.CollectMetrics = true
	return c
}

// ============================================================================
// Task errors
// ============================================================================

// ErrTaskTimeout is reported for a task that exceeded PoolConfig.TaskTimeout.
var ErrTaskTimeout = errors.New("task timed out")

// ErrTaskSkipped is reported for a task that never started because the
// pool context ended first.
var ErrTaskSkipped = errors.New("task skipped")

// PanicError carries a recovered task panic.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// ============================================================================
// Execution Metrics
// ============================================================================

// PoolMetrics holds execution statistics.
type PoolMetrics struct {
	TotalTasks     int64
	CompletedTasks int64
	FailedTasks    int64
	TotalDuration  time.Duration
	AvgTaskTime    time.Duration
	MaxTaskTime    time.Duration
	MinTaskTime    time.Duration
}

// ============================================================================
// Generic Task Interface
// ============================================================================

// Task represents a unit of work that can be executed by the worker pool.
type Task[T any, R any] interface {
	// Execute performs the task and returns the result.
	Execute(ctx context.Context) (R, error)
	// Input returns the input data for this task.
	Input() T
}

// TaskFunc is a function type that implements Task interface.
type TaskFunc[T any, R any] struct {
	input   T
	execute func(ctx context.Context, input T) (R, error)
}

// NewTask creates a new task from a function.
func NewTask[T any, R any](input T, fn func(ctx context.Context, input T) (R, error)) *TaskFunc[T, R] {
	return &TaskFunc[T, R]{
		input:   input,
		execute: fn,
	}
}

// Execute implements Task interface.
func (t *TaskFunc[T, R]) Execute(ctx context.Context) (R, error) {
	return t.execute(ctx, t.input)
}

// Input implements Task interface.
func (t *TaskFunc[T, R]) Input() T {
	return t.input
}

// ============================================================================
// Task Result
// ============================================================================

// TaskResult holds the result of a task execution.
type TaskResult[T any, R any] struct {
	Input    T
	Result   R
	Error    error
	Duration time.Duration
}

// CompletionFunc receives each finished task together with its index in
// the submitted slice. It is always invoked from a single collector
// goroutine, so it may write shared state without locking.
type CompletionFunc[T any, R any] func(index int, result TaskResult[T, R])

type indexedResult[T any, R any] struct {
	index  int
	result TaskResult[T, R]
}

// ============================================================================
// Worker Pool
// ============================================================================

// WorkerPool manages a pool of workers for parallel task execution.
type WorkerPool[T any, R any] struct {
	config  PoolConfig
	metrics *PoolMetrics
	mu      sync.Mutex
}

// NewWorkerPool creates a new worker pool with the given configuration.
func NewWorkerPool[T any, R any](config PoolConfig) *WorkerPool[T, R] {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultPoolConfig().MaxWorkers
	}
	if config.TaskBufferSize <= 0 {
		config.TaskBufferSize = config.MaxWorkers * 2
	}
	return &WorkerPool[T, R]{
		config: config,
		metrics: &PoolMetrics{
			MinTaskTime: time.Hour,
		},
	}
}

// Execute runs all tasks in parallel and returns results.
// Results are returned in the same order as input tasks.
func (p *WorkerPool[T, R]) Execute(ctx context.Context, tasks []Task[T, R]) []TaskResult[T, R] {
	if len(tasks) == 0 {
		return nil
	}
	results := make([]TaskResult[T, R], len(tasks))
	p.ExecuteWithCallback(ctx, tasks, func(index int, result TaskResult[T, R]) {
		results[index] = result
	})
	return results
}

// ExecuteWithCallback runs all tasks and hands every result to onComplete
// in completion order. Each task produces exactly one completion: tasks
// that never start because ctx ended are reported with ErrTaskSkipped.
// It returns once every completion has been delivered.
func (p *WorkerPool[T, R]) ExecuteWithCallback(ctx context.Context, tasks []Task[T, R], onComplete CompletionFunc[T, R]) {
	if len(tasks) == 0 {
		return
	}

	startTime := time.Now()

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	taskCh := make(chan int, p.config.TaskBufferSize)
	resultCh := make(chan indexedResult[T, R], len(tasks))

	var wg sync.WaitGroup
	numWorkers := min(p.config.MaxWorkers, len(tasks))

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskCh {
				res := p.run(ctx, tasks[idx])
				if p.config.CollectMetrics {
					p.updateMetrics(res.Duration, res.Error)
				}
				resultCh <- indexedResult[T, R]{index: idx, result: res}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(taskCh)
		for i := range tasks {
			select {
			case <-ctx.Done():
				for j := i; j < len(tasks); j++ {
					resultCh <- indexedResult[T, R]{index: j, result: TaskResult[T, R]{
						Input: tasks[j].Input(),
						Error: fmt.Errorf("%w: %v", ErrTaskSkipped, ctx.Err()),
					}}
				}
				return
			case taskCh <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for r := range resultCh {
		if onComplete != nil {
			onComplete(r.index, r.result)
		}
	}

	if p.config.CollectMetrics {
		p.mu.Lock()
		p.metrics.TotalDuration = time.Since(startTime)
		if p.metrics.CompletedTasks > 0 {
			p.metrics.AvgTaskTime = p.metrics.TotalDuration / time.Duration(p.metrics.CompletedTasks)
		}
		p.mu.Unlock()
	}
}

// ExecuteFunc is a convenience method that creates tasks from a function.
func (p *WorkerPool[T, R]) ExecuteFunc(ctx context.Context, inputs []T, fn func(ctx context.Context, input T) (R, error)) []TaskResult[T, R] {
	return p.Execute(ctx, tasksFromFunc(inputs, fn))
}

func tasksFromFunc[T any, R any](inputs []T, fn func(ctx context.Context, input T) (R, error)) []Task[T, R] {
	tasks := make([]Task[T, R], len(inputs))
	for i, input := range inputs {
		tasks[i] = NewTask(input, fn)
	}
	return tasks
}

// run executes one task with panic recovery and the optional task timeout.
func (p *WorkerPool[T, R]) run(ctx context.Context, task Task[T, R]) TaskResult[T, R] {
	start := time.Now()

	if p.config.TaskTimeout <= 0 {
		res := execute(ctx, task)
		res.Duration = time.Since(start)
		return res
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.config.TaskTimeout)
	defer cancel()

	done := make(chan TaskResult[T, R], 1)
	go func() {
		done <- execute(taskCtx, task)
	}()

	select {
	case res := <-done:
		res.Duration = time.Since(start)
		return res
	case <-taskCtx.Done():
		err := taskCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTaskTimeout, p.config.TaskTimeout)
		}
		return TaskResult[T, R]{
			Input:    task.Input(),
			Error:    err,
			Duration: time.Since(start),
		}
	}
}

func execute[T any, R any](ctx context.Context, task Task[T, R]) (res TaskResult[T, R]) {
	res.Input = task.Input()
	defer func() {
		if v := recover(); v != nil {
			res.Error = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	res.Result, res.Error = task.Execute(ctx)
	return res
}

// updateMetrics updates the pool metrics (thread-safe).
func (p *WorkerPool[T, R]) updateMetrics(duration time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.TotalTasks++
	if err != nil {
		p.metrics.FailedTasks++
	} else {
		p.metrics.CompletedTasks++
	}

	if duration > p.metrics.MaxTaskTime {
		p.metrics.MaxTaskTime = duration
	}
	if duration < p.metrics.MinTaskTime {
		p.metrics.MinTaskTime = duration
	}
}

// Metrics returns the current execution metrics.
func (p *WorkerPool[T, R]) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.metrics
}
