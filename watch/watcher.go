package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/fs"
)

// Handler receives the path of a settled, changed file. It runs on a watcher
// goroutine and should hand the work off quickly.
type Handler func(ctx context.Context, path string)

// eventBacklog bounds how many settled-but-unprocessed changes can queue up
// before further events are dropped with a warning.
const eventBacklog = 128

// settleWorkers is how many files can sit in their stability wait at once.
const settleWorkers = 4

// Watcher follows a directory tree with fsnotify, debounces change bursts,
// waits for each changed file to settle, and then invokes the handler.
type Watcher struct {
	fsys    fs.Filesystem
	root    string
	cfg     Config
	handler Handler
	log     *zap.Logger
	ready   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New builds a Watcher over root. Paths handed to fsnotify and to the
// handler are resolved through fsys, so root must be addressable by both.
func New(fsys fs.Filesystem, root string, cfg Config, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		fsys:    fsys,
		root:    filepath.Clean(root),
		cfg:     cfg.withDefaults(),
		handler: handler,
		log:     zap.NewNop(),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the tree is armed and events are being collected.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. Call it once per Watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return cargoerrors.New("watch", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return cargoerrors.NewPathError("watch", w.root,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	close(w.ready)
	w.log.Info("watch started", zap.String("root", w.root))

	pending := make(chan string, eventBacklog)
	deb := newDebouncer(w.cfg.Debounce, func(path string) {
		select {
		case pending <- path:
		default:
			w.log.Warn("change backlog full, dropping event", zap.String("path", path))
		}
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < settleWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				case path := <-pending:
					w.settle(ctx, path)
				}
			}
		}()
	}

	runErr := w.loop(ctx, fsw, deb)

	deb.stop()
	close(done)
	wg.Wait()
	w.log.Info("watch stopped", zap.String("root", w.root))
	return runErr
}

// Scan walks the tree once and hands every non-ignored regular file to the
// handler, without a stability wait. Used at startup to pick up changes that
// happened while no watcher was running.
func (w *Watcher) Scan(ctx context.Context) error {
	err := w.fsys.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if filepath.Clean(path) == w.root {
				return err
			}
			w.log.Warn("scan skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		path = filepath.Clean(path)
		if info.IsDir() {
			if path != w.root && w.cfg.Ignored(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.cfg.Ignored(path) {
			return nil
		}
		w.handler(ctx, path)
		return nil
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return cargoerrors.NewPathError("watch.scan", w.root,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	return nil
}

// loop drains fsnotify until ctx ends. Backend errors are logged, not fatal.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, deb *debouncer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, deb, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch backend error", zap.Error(err))
		}
	}
}

// handleEvent reacts to creates and writes. Removes and renames are
// deliberately silent: a deleted file never un-protects what was uploaded.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, deb *debouncer, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Op&fsnotify.Create != 0:
		if w.isDir(path) {
			if w.cfg.Ignored(path) {
				return
			}
			if err := w.addTree(fsw, path); err != nil {
				w.log.Warn("could not watch new directory", zap.String("path", path), zap.Error(err))
			}
			return
		}
		if w.cfg.Ignored(path) {
			return
		}
		deb.touch(path)
	case ev.Op&fsnotify.Write != 0:
		if w.cfg.Ignored(path) || w.isDir(path) {
			return
		}
		deb.touch(path)
	}
}

// addTree registers root and every non-ignored directory beneath it.
// Subtrees that fail to walk are logged and skipped; a missing root fails.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return w.fsys.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if filepath.Clean(path) == root {
				return err
			}
			w.log.Warn("watch walk error", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		path = filepath.Clean(path)
		if path != root && w.cfg.Ignored(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// settle waits out the stability window for path and then invokes the
// handler. Files that never settle are skipped with a warning; the next
// write event gives them another chance.
func (w *Watcher) settle(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	if err := waitStable(ctx, w.fsys, path, w.cfg); err != nil {
		if ctx.Err() == nil {
			w.log.Warn("skipping unsettled file", zap.String("path", path), zap.Error(err))
		}
		return
	}
	w.handler(ctx, path)
}

func (w *Watcher) isDir(path string) bool {
	info, err := w.fsys.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
