// Package watch detects compaction markers written by barrel.Compact and
// hot-swaps the affected barrel's mmap in a reader process that did not run
// the compaction itself. Grounded on internal/watcher/watcher.go's debounced
// fsnotify event loop, adapted from "re-index a changed source file" to
// "reopen a barrel whose base segment was just replaced".
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
)

// markerName is the file barrel.LSMBarrel.Compact writes once it has
// replaced a barrel's base segment and emptied its delta, just before it
// remaps the new base in its own process.
const markerName = "compaction.complete"

var barrelDirPattern = regexp.MustCompile(`^barrel_(\d+)$`)

// Reopener is implemented by engine.Engine; kept as a narrow interface so
// this package does not import internal/engine (which already imports
// internal/barrel and friends — a watch->engine dependency would be the
// only cycle-risk edge in the module).
type Reopener interface {
	ReopenBarrel(barrelID int) error
}

// Watcher watches a barrels directory for compaction markers and reopens
// the corresponding barrel through engine.
type Watcher struct {
	fw       *fsnotify.Watcher
	reopener Reopener
	debounce time.Duration
}

// New creates a Watcher that will call reopener.ReopenBarrel whenever a
// barrel_<id>/compaction.complete marker appears or is rewritten.
func New(reopener Reopener) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &Watcher{fw: fw, reopener: reopener, debounce: 200 * time.Millisecond}, nil
}

// Watch adds every existing barrel_<id> directory under barrelsDir to the
// watch list and processes events until done is closed. Call this in a
// goroutine. It returns early with an error if a barrel directory cannot be
// listed or watched, and with nil if the watcher's event or error channel
// is closed.
func (w *Watcher) Watch(barrelsDir string, done <-chan struct{}) error {
	if err := w.addBarrelDirs(barrelsDir); err != nil {
		return err
	}

	pending := make(map[int]*time.Timer)

	for {
		select {
		case <-done:
			return w.fw.Close()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != markerName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			barrelID, ok := barrelIDFromMarkerPath(event.Name)
			if !ok {
				continue
			}

			if t, ok := pending[barrelID]; ok {
				t.Stop()
			}
			pending[barrelID] = time.AfterFunc(w.debounce, func() {
				if err := w.reopener.ReopenBarrel(barrelID); err != nil {
					fmt.Fprintf(os.Stderr, "[watch] reopen barrel %d: %v\n", barrelID, err)
				}
			})

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "[watch] error: %v\n", err)
		}
	}
}

func (w *Watcher) addBarrelDirs(barrelsDir string) error {
	entries, err := os.ReadDir(barrelsDir)
	if err != nil {
		return fmt.Errorf("read barrels dir %s: %w", barrelsDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || !barrelDirPattern.MatchString(e.Name()) {
			continue
		}
		dir := filepath.Join(barrelsDir, e.Name())
		if err := w.fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

func barrelIDFromMarkerPath(markerPath string) (int, bool) {
	dir := filepath.Base(filepath.Dir(markerPath))
	m := barrelDirPattern.FindStringSubmatch(dir)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
