package scandex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchEvent reports the outcome of one debounced re-analysis triggered by
// Watch.
type WatchEvent struct {
	Report *ScanReport
	Err    error
}

// Watch monitors scriptRoot (and ctlRoot, if different) for filesystem
// changes and re-runs Analyze after a debounce window settles, so a burst
// of saves from an editor triggers one scan instead of many. Watch returns
// at once; a background goroutine runs until ctx is cancelled, sending one
// WatchEvent per re-analysis on the returned channel, and closes the
// channel when it stops.
func (e *Engine) Watch(ctx context.Context, scriptRoot, ctlRoot string, debounce time.Duration) (<-chan WatchEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	roots := []string{scriptRoot}
	if ctlRoot != scriptRoot {
		roots = append(roots, ctlRoot)
	}
	for _, root := range roots {
		if err := addRecursive(watcher, root); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	events := make(chan WatchEvent)
	go e.watchLoop(ctx, watcher, scriptRoot, ctlRoot, debounce, events)
	return events, nil
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

func (e *Engine) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, scriptRoot, ctlRoot string, debounce time.Duration, events chan<- WatchEvent) {
	defer close(events)
	defer watcher.Close()

	var mu sync.Mutex
	pending := false
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	runScan := func() {
		report, err := e.Analyze(ctx, scriptRoot, ctlRoot)
		select {
		case events <- WatchEvent{Report: report, Err: err}:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isRelevant(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
				}
			}
			mu.Lock()
			pending = true
			mu.Unlock()
			timer.Reset(debounce)

		case <-watcher.Errors:
			continue

		case <-timer.C:
			mu.Lock()
			shouldRun := pending
			pending = false
			mu.Unlock()
			if shouldRun {
				runScan()
			}
		}
	}
}

func isRelevant(name string) bool {
	return strings.HasSuffix(name, ".ksh") || strings.HasSuffix(name, ".sh") || strings.HasSuffix(name, ".ctl")
}
