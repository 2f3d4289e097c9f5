package scandex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func collectWatchTargets(t *testing.T, root string) []string {
	t.Helper()
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, addRecursive(w, root))
	return w.WatchList()
}

func TestWatch_DebouncesAndRescans(t *testing.T) {
	root := t.TempDir()
	p := writeScript(t, root, "a.ksh", "")

	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root, root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := e.Watch(ctx, root, root, 50*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("./b.ksh\n"), 0o644))
	writeScript(t, root, "b.ksh", "")

	select {
	case ev := <-events:
		require.NoError(t, ev.Err)
		require.NotNil(t, ev.Report)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for debounced rescan")
	}

	cancel()
	for range events {
	}
}

func TestAddRecursive_SkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scripts"), 0o755))

	watched := collectWatchTargets(t, root)
	require.Contains(t, watched, root)
	require.Contains(t, watched, filepath.Join(root, "scripts"))
	require.NotContains(t, watched, filepath.Join(root, ".git"))
}
