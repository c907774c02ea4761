package maintenancemodule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := NewWatcher(root)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcherMarksDirtyOnFileChange(t *testing.T) {
	root := t.TempDir()
	w := startedWatcher(t, root)

	assert.False(t, w.Dirty())

	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.webp"), []byte("x"), 0o644))

	assert.Eventually(t, w.Dirty, 2*time.Second, 10*time.Millisecond)
	assert.Positive(t, w.EventCount())
}

func TestWatcherResetClearsDirty(t *testing.T) {
	root := t.TempDir()
	w := startedWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	assert.Eventually(t, w.Dirty, 2*time.Second, 10*time.Millisecond)

	events := w.EventCount()
	w.Reset()
	assert.False(t, w.Dirty())
	assert.Equal(t, events, w.EventCount(), "reset keeps the running event count")
}

func TestWatcherFollowsNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	w := startedWatcher(t, root)

	sub := filepath.Join(root, "artists")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Eventually(t, w.Dirty, 2*time.Second, 10*time.Millisecond)
	w.Reset()

	// Writes inside the new directory must be observed too. The watch on
	// the subdirectory is added asynchronously, so retry the write.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(sub, "p.webp"), []byte("x"), 0o644)
		return w.Dirty()
	}, 2*time.Second, 50*time.Millisecond)
}

func TestWatcherStartFailsOnMissingRoot(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	assert.Error(t, w.Start())
}
