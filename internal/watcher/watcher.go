// Package watcher reports dump files that appear in a directory once they
// stop changing.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/dump-sleuth/pkg/errors"
	"github.com/dump-sleuth/pkg/utils"
)

// DefaultSettle is how long a file must be quiet before it is handed off.
const DefaultSettle = 2 * time.Second

// Handler receives settled files one at a time.
type Handler func(ctx context.Context, path string)

// Options configures a Watcher.
type Options struct {
	Pattern string        // base-name glob, default "*"
	Settle  time.Duration // default DefaultSettle
	Logger  utils.Logger
}

// Watcher watches one directory, non-recursively.
type Watcher struct {
	dir     string
	opts    Options
	handle  Handler
	log     utils.Logger
	fsw     *fsnotify.Watcher
	ready   chan string
	done    chan struct{}
	mu      sync.Mutex
	pending map[string]*settleTimer
}

// settleTimer is one pending hand-off. A timer that already fired is never
// reused; its callback finds itself replaced and gives up.
type settleTimer struct {
	timer *time.Timer
}

// New validates dir and pattern and creates the filesystem watcher.
func New(dir string, handle Handler, opts Options) (*Watcher, error) {
	if opts.Pattern == "" {
		opts.Pattern = "*"
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, apperrors.Config(fmt.Sprintf("bad pattern %q", opts.Pattern), err)
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperrors.Access("cannot watch directory", err)
	}
	if !info.IsDir() {
		return nil, apperrors.Config(fmt.Sprintf("%s is not a directory", dir), nil)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Access("failed to initialize filesystem watcher", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, apperrors.Access("cannot watch directory", err)
	}

	return &Watcher{
		dir:     dir,
		opts:    opts,
		handle:  handle,
		log:     utils.OrNull(opts.Logger).WithField("dir", dir),
		fsw:     fsw,
		ready:   make(chan string, 64),
		done:    make(chan struct{}),
		pending: make(map[string]*settleTimer),
	}, nil
}

// Run dispatches settled files to the handler until ctx is done. The
// handler runs on the calling goroutine, so files are handled serially.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	w.log.Info("watching for %s", w.opts.Pattern)

	events := make(chan error, 1)
	go func() { events <- w.loop(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-events:
			return err
		case path := <-w.ready:
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if ok, _ := filepath.Match(w.opts.Pattern, filepath.Base(ev.Name)); !ok {
				continue
			}
			w.touch(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("event queue overflowed, some files may be missed")
				continue
			}
			w.log.Error("watch error: %v", err)
		}
	}
}

// touch restarts the settle timer for path.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touchLocked(path)
}

func (w *Watcher) touchLocked(path string) {
	if st, ok := w.pending[path]; ok && st.timer.Stop() {
		st.timer.Reset(w.opts.Settle)
		return
	}
	st := &settleTimer{}
	st.timer = time.AfterFunc(w.opts.Settle, func() { w.settle(path, st) })
	w.pending[path] = st
}

func (w *Watcher) settle(path string, st *settleTimer) {
	w.mu.Lock()
	if w.pending[path] != st {
		// touched again after firing; the newer timer owns the hand-off
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return
	}
	w.log.Debug("settled: %s", filepath.Base(path))
	select {
	case w.ready <- path:
	case <-w.done:
	}
}

func (w *Watcher) stop() {
	close(w.done)
	w.mu.Lock()
	for path, st := range w.pending {
		st.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if err := w.fsw.Close(); err != nil {
		w.log.Warn("closing watcher: %v", err)
	}
}
