// Package watch reports edits to a project's fingerprinted build inputs.
package watch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor or the engine's
// code generator produces for one save
const DefaultDebounce = 200 * time.Millisecond

// Change is a settled edit to one tracked input
type Change struct {
	// Input is the tracked path relative to the project
	Input string

	// Path is the absolute file path
	Path string

	// Removed is set when the file no longer exists
	Removed bool
}

// Watcher monitors the directories holding a project's tracked inputs
type Watcher struct {
	ProjectDir string
	Debounce   time.Duration
	Changes    <-chan Change

	tracked map[string]string // absolute path -> input
	changes chan Change
	quit    chan struct{}
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for inputs, given relative to projectDir
func NewWatcher(projectDir string, inputs []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]string, len(inputs))
	for _, in := range inputs {
		tracked[filepath.Join(projectDir, filepath.FromSlash(in))] = in
	}

	// Closed until Start runs a loop, so Stop never waits on nothing
	done := make(chan struct{})
	close(done)

	ch := make(chan Change, 16)
	return &Watcher{
		ProjectDir: projectDir,
		Debounce:   DefaultDebounce,
		Changes:    ch,
		tracked:    tracked,
		changes:    ch,
		quit:       make(chan struct{}),
		done:       done,
		watcher:    fw,
	}, nil
}

// Start begins watching. Directories that do not exist yet are skipped.
func (w *Watcher) Start() error {
	dirs := map[string]bool{}
	for path := range w.tracked {
		dirs[filepath.Dir(path)] = true
	}

	for dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}

		if err := w.watcher.Add(dir); err != nil {
			w.watcher.Close()
			return err
		}
	}

	w.done = make(chan struct{})
	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel. It is safe whether or
// not Start was called or succeeded.
func (w *Watcher) Stop() {
	close(w.quit)
	w.watcher.Close()
	<-w.done
	close(w.changes)
}

// Watched lists the directories being watched
func (w *Watcher) Watched() []string {
	return w.watcher.WatchList()
}

func (w *Watcher) loop() {
	defer close(w.done)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if _, ok := w.tracked[filepath.Clean(event.Name)]; !ok {
				continue
			}

			// Editors often save by renaming a temp file over the original
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[filepath.Clean(event.Name)] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) >= debounce {
					delete(pending, file)
					if !w.emit(file) {
						return
					}
				}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) emit(file string) bool {
	c := Change{Input: w.tracked[file], Path: file}
	if _, err := os.Stat(file); err != nil {
		c.Removed = true
	}

	select {
	case w.changes <- c:
		return true
	case <-w.quit:
		return false
	}
}
