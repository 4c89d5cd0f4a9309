package parse

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow is the default coalescing window for re-parse
// triggers.
const DefaultDebounceWindow = 300 * time.Millisecond

// Watcher wraps fsnotify with the debounced-coalescing behavior the
// coordinator needs: rapid writes to the same file collapse into one
// re-parse, and a create immediately followed by a delete cancels out.
// When fsnotify cannot be initialized (inotify limits, unsupported
// filesystems), the watcher degrades to periodic mod-time polling.
type Watcher struct {
	fs     *fsnotify.Watcher
	window time.Duration
	root   string

	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer

	out chan []FileEvent
	log *slog.Logger

	pollStop chan struct{}
	snapshot map[string]pollState
}

type pollState struct {
	modTime time.Time
	size    int64
}

// NewWatcher starts watching root (recursively, one fsnotify.Add per
// directory — fsnotify itself is not recursive). If the native watcher
// cannot start, a polling loop takes over at a multiple of the debounce
// window.
func NewWatcher(root string, window time.Duration, log *slog.Logger) (*Watcher, error) {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if log == nil {
		log = slog.Default()
	}

	w := &Watcher{
		window:  window,
		root:    root,
		pending: make(map[string]FileEvent),
		out:     make(chan []FileEvent, 16),
		log:     log,
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := addRecursive(fsw, root); addErr != nil {
			fsw.Close()
			return nil, addErr
		}
		w.fs = fsw
		go w.loop()
		return w, nil
	}

	w.log.Warn("fsnotify unavailable, falling back to polling", "error", err)
	w.pollStop = make(chan struct{})
	w.snapshot = w.scanTree()
	go w.pollLoop()
	return w, nil
}

// pollLoop diffs the tree against the previous snapshot on a fixed
// cadence, translating changes into the same coalesced batches the
// fsnotify path produces.
func (w *Watcher) pollLoop() {
	interval := w.window * 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.pollStop:
			return
		case <-ticker.C:
			current := w.scanTree()
			for rel, state := range current {
				prev, existed := w.snapshot[rel]
				switch {
				case !existed:
					w.enqueue(FileEvent{Path: rel, Operation: OpCreate, At: time.Now()})
				case state.modTime != prev.modTime || state.size != prev.size:
					w.enqueue(FileEvent{Path: rel, Operation: OpModify, At: time.Now()})
				}
			}
			for rel := range w.snapshot {
				if _, still := current[rel]; !still {
					w.enqueue(FileEvent{Path: rel, Operation: OpDelete, At: time.Now()})
				}
			}
			w.snapshot = current
		}
	}
}

func (w *Watcher) scanTree() map[string]pollState {
	out := make(map[string]pollState)
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.root {
				return filepath.SkipDir
			}
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			rel = path
		}
		out[rel] = pollState{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return out
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		return nil
	})
}

// Events returns the channel of debounced, coalesced file event batches.
func (w *Watcher) Events() <-chan []FileEvent { return w.out }

// Close stops watching and releases the underlying fsnotify handle (or
// stops the polling loop when running degraded).
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if w.pollStop != nil {
		close(w.pollStop)
	}
	if w.fs != nil {
		return w.fs.Close()
	}
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	w.enqueue(FileEvent{Path: rel, Operation: op, At: time.Now()})
}

// enqueue coalesces ev into the pending batch and (re)arms the debounce
// timer. Shared by the fsnotify and polling paths.
func (w *Watcher) enqueue(ev FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[ev.Path] = coalesce(w.pending[ev.Path], ev)

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.flush)
}

// coalesce merges a new event with a pending one for the same path:
// create+modify stays a create; any other pair keeps the incoming event,
// so create+delete becomes a delete (a no-op in the coordinator's
// removeFile for files it never recorded).
func coalesce(existing FileEvent, incoming FileEvent) FileEvent {
	if existing.Path == "" {
		return incoming
	}
	if existing.Operation == OpCreate && incoming.Operation == OpModify {
		return FileEvent{Path: incoming.Path, Operation: OpCreate, At: incoming.At}
	}
	return incoming
}

func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(w.pending))
	for _, ev := range w.pending {
		batch = append(batch, ev)
	}
	w.pending = make(map[string]FileEvent)

	select {
	case w.out <- batch:
	default:
		w.log.Warn("watch event channel full, dropping batch", "size", len(batch))
	}
}
