package skills

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
)

const watchDebounce = 2 * time.Second

// Watcher reloads skill files when they change on disk, so edits made by an
// operator (or an external sync) show up without restarting the daemon.
type Watcher struct {
	library *Library
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu            sync.Mutex
	pending       map[string]struct{}
	debounceTimer *time.Timer

	reloadChan chan struct{}
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewWatcher creates a watcher over the library root. Call Start to begin
// receiving events and Stop to shut down.
func NewWatcher(library *Library, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError,
			"create skill watcher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		library:    library,
		watcher:    fw,
		logger:     logger,
		pending:    make(map[string]struct{}),
		reloadChan: make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// Start watches the library root and applies debounced reloads until Stop is
// called or ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.library.Root()); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategorySkill, pipeerrors.SeverityError,
			"watch skill directory").WithContext("root", w.library.Root())
	}
	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	w.logger.Debug("skill watcher started", slog.String("root", w.library.Root()))
	return nil
}

// Stop terminates the watch and reload loops.
func (w *Watcher) Stop() {
	close(w.stopChan)
	_ = w.watcher.Close()
	<-w.doneChan
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.queueReload(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("skill watcher error", logfields.Error(err))
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	if !strings.HasSuffix(event.Name, ".md") {
		return false
	}
	// Archived versions are immutable history, not live skills.
	return filepath.Base(filepath.Dir(event.Name)) != versionsDir
}

func (w *Watcher) queueReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(watchDebounce, func() {
		select {
		case w.reloadChan <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	defer close(w.doneChan)
	for {
		select {
		case <-w.reloadChan:
			w.flush(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, path := range paths {
		if err := w.library.ReloadFile(ctx, path); err != nil {
			w.logger.Warn("skill reload failed",
				slog.String("path", path),
				logfields.Error(err))
			continue
		}
		w.logger.Info("skill reloaded", slog.String("path", path))
	}
}
