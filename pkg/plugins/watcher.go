package plugins

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long the watcher waits for changes to settle
const DefaultDebounce = 500 * time.Millisecond

// watchDepth is how many levels below a search directory are watched:
// the search dir, each plugin dir and its commands dir
const watchDepth = 2

// Watcher triggers a callback when plugin directories change. Bursts of
// events are coalesced into one call.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	fsMu      sync.Mutex
	roots     []string
	debounce  time.Duration
	onChange  func(ctx context.Context)
	log       *logrus.Logger
}

// NewWatcher watches roots and calls onChange after changes settle
func NewWatcher(roots []string, debounce time.Duration, onChange func(ctx context.Context), log *logrus.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		roots:     roots,
		debounce:  debounce,
		onChange:  onChange,
		log:       log,
	}
	for _, root := range roots {
		w.addTree(root, 0)
	}
	return w, nil
}

// WatchManager watches the manager's search directories and reloads plugins on change
func WatchManager(m *Manager, debounce time.Duration) (*Watcher, error) {
	return NewWatcher(m.loader.Dirs(), debounce, func(ctx context.Context) {
		loaded := m.Reload(ctx)
		m.log.Infof("Plugin directories changed, reloaded %d plugins", len(loaded))
	}, m.log)
}

func (w *Watcher) add(path string) error {
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	return w.fsWatcher.Add(path)
}

func (w *Watcher) addTree(path string, depth int) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.add(path); err != nil {
		w.log.WithError(err).Debugf("Failed to watch %s", path)
		return
	}
	if depth >= watchDepth {
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || entry.Name() == "node_modules" {
			continue
		}
		if depth == 1 && entry.Name() != CommandsDir {
			continue
		}
		w.addTree(filepath.Join(path, entry.Name()), depth+1)
	}
}

// depthOf returns how far path is below the nearest watched root, or -1
func (w *Watcher) depthOf(path string) int {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if rel == "." {
			return 0
		}
		return len(strings.Split(rel, string(filepath.Separator)))
	}
	return -1
}

// Run processes events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			w.log.Debugf("Plugin file event: %s %s", event.Op, event.Name)

			if event.Has(fsnotify.Create) {
				if depth := w.depthOf(event.Name); depth > 0 && depth <= watchDepth {
					w.addTree(event.Name, depth)
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.onChange(ctx)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Plugin watcher error")
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	return w.fsWatcher.Close()
}
