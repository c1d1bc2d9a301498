package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/utils"
)

// reloadSettle lets an editor finish writing before the file is re-read.
const reloadSettle = 100 * time.Millisecond

// A Watcher reloads a config file whenever it changes on disk. Invalid revisions are logged
// and skipped.
type Watcher struct {
	path      string
	logger    logging.Logger
	watcher   *fsnotify.Watcher
	out       chan *Config
	debounced func(func())
	workers   utils.StoppableWorkers

	mu     sync.Mutex
	closed bool
}

// NewWatcher starts watching filePath. The directory is watched rather than the file so that
// editors which replace the file on save are followed.
func NewWatcher(ctx context.Context, filePath string, logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating config watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		goutils.UncheckedError(fsw.Close())
		return nil, errors.Wrapf(err, "watching %q", filepath.Dir(abs))
	}
	w := &Watcher{
		path:      abs,
		logger:    logger,
		watcher:   fsw,
		out:       make(chan *Config, 1),
		debounced: debounce.New(reloadSettle),
	}
	w.workers = utils.NewStoppableWorkersWithContext(ctx, w.watch)
	return w, nil
}

// Config returns the channel new revisions are delivered on. Only the latest unread revision
// is kept.
func (w *Watcher) Config() <-chan *Config {
	return w.out
}

// Close stops watching. No revision is read or published once Close returns.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	err := w.watcher.Close()
	w.workers.Stop()
	return err
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// a single save produces a burst of events
			w.debounced(w.reload)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	cfg, err := Read(w.path, w.logger)
	if err != nil {
		w.logger.Warnw("ignoring invalid config revision", "path", w.path, "error", err)
		return
	}
	w.logger.Infow("config changed", "path", w.path)
	select {
	case <-w.out:
	default:
	}
	w.out <- cfg
}
