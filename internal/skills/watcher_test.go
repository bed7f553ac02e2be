package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_Relevant_FiltersEvents(t *testing.T) {
	lib, _ := newTestLibrary(t)
	w, err := NewWatcher(lib, nil)
	require.NoError(t, err)
	defer func() { _ = w.watcher.Close() }()

	root := lib.Root()
	cases := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write to skill file", fsnotify.Event{Name: filepath.Join(root, "hook.md"), Op: fsnotify.Write}, true},
		{"create skill file", fsnotify.Event{Name: filepath.Join(root, "hook.md"), Op: fsnotify.Create}, true},
		{"chmod ignored", fsnotify.Event{Name: filepath.Join(root, "hook.md"), Op: fsnotify.Chmod}, false},
		{"non-markdown ignored", fsnotify.Event{Name: filepath.Join(root, "notes.txt"), Op: fsnotify.Write}, false},
		{"archived version ignored", fsnotify.Event{Name: filepath.Join(root, "versions", "hook_v1_x.md"), Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.relevant(tc.ev))
		})
	}
}

func TestWatcher_Flush_ReloadsQueuedPaths(t *testing.T) {
	lib, store := newTestLibrary(t)
	w, err := NewWatcher(lib, nil)
	require.NoError(t, err)
	defer func() { _ = w.watcher.Close() }()

	path := writeTaggedSkill(t, lib)
	w.pending[path] = struct{}{}
	w.flush(context.Background())

	sk, ok := lib.Get("tagged-hooks")
	require.True(t, ok)
	assert.Equal(t, "misc", sk.Category)
	_, mirrored := store.get("tagged-hooks")
	assert.True(t, mirrored)
}

func TestWatcher_StartStop_DeliversDebouncedReload(t *testing.T) {
	lib, _ := newTestLibrary(t)
	w, err := NewWatcher(lib, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	path := filepath.Join(lib.Root(), "fresh-skill.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nname: fresh-skill\nconfidence: 0.5\n---\n- A rule.\n"), 0o644))

	require.Eventually(t, func() bool {
		_, ok := lib.Get("fresh-skill")
		return ok
	}, 10*time.Second, 50*time.Millisecond)

	w.Stop()
}
