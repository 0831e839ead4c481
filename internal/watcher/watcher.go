package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is the kind of change seen on a watched file.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one change to a watched file. Path is absolute.
type Event struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a FileWatcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted.
	Debounce time.Duration

	// PollInterval is used only in polling mode.
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool

	Logger *slog.Logger
}

// DefaultOptions returns a 500ms debounce and a 2s poll interval.
func DefaultOptions() Options {
	return Options{
		Debounce:     500 * time.Millisecond,
		PollInterval: 2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// FileWatcher watches a set of files through their parent directories.
type FileWatcher struct {
	targets map[string]struct{}
	dirs    []string
	opts    Options

	fsw       *fsnotify.Watcher
	poller    *poller
	debouncer *Debouncer
	errors    chan error

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher for paths. The files need not exist yet.
func New(paths []string, opts Options) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("watcher: no paths to watch")
	}
	opts = opts.withDefaults()

	w := &FileWatcher{
		targets:   make(map[string]struct{}, len(paths)),
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce, opts.Logger),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	seenDir := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.targets[abs] = struct{}{}
		if dir := filepath.Dir(abs); !seenDir[dir] {
			seenDir[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsw = fsw
		} else {
			opts.Logger.Warn("fsnotify unavailable, polling", slog.String("error", err.Error()))
		}
	}
	return w, nil
}

// Polling reports whether the watcher runs in polling mode.
func (w *FileWatcher) Polling() bool { return w.fsw == nil }

// Events returns debounced batches. The channel closes on Stop.
func (w *FileWatcher) Events() <-chan []Event { return w.debouncer.Output() }

// Errors returns non-fatal watch errors. It is never closed.
func (w *FileWatcher) Errors() <-chan error { return w.errors }

// Start watches until ctx ends or Stop is called. It blocks.
func (w *FileWatcher) Start(ctx context.Context) error {
	if w.fsw != nil {
		if err := w.addDirs(); err != nil {
			w.opts.Logger.Warn("fsnotify watch failed, polling", slog.String("error", err.Error()))
			_ = w.fsw.Close()
			w.fsw = nil
		}
	}
	if w.fsw == nil {
		w.poller = newPoller(w.targetList(), w.debouncer.Add)
		return w.runPolling(ctx)
	}
	return w.runFsnotify(ctx)
}

func (w *FileWatcher) addDirs() error {
	for _, dir := range w.dirs {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

func (w *FileWatcher) targetList() []string {
	list := make([]string, 0, len(w.targets))
	for p := range w.targets {
		list = append(list, p)
	}
	return list
}

func (w *FileWatcher) runFsnotify(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *FileWatcher) runPolling(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.poller.poll()
		}
	}
}

func (w *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.targets[path]; !ok {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(Event{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *FileWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.opts.Logger.Warn("watch_error_dropped", slog.String("error", err.Error()))
	}
}

// Stop ends Start and closes Events. Safe to call more than once.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
	})
}
