package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWatcherPostsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.toml")
	require.NoError(t, os.WriteFile(path, []byte("name = \"demo\"\n"), 0o644))

	events := core.NewEventSystem(16)
	var changed []string
	events.Register(core.EVENT_CODE_MAP_CHANGED, "test", func(ctx core.EventContext) bool {
		changed = append(changed, ctx.Data.(*core.FileEvent).Path)
		return true
	})

	watcher, err := NewMapWatcher(path, events)
	require.NoError(t, err)
	watcher.debounce = 10 * time.Millisecond
	require.NoError(t, watcher.Start())
	defer watcher.Close()

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("name = \"edited\"\n"), 0o644))

	require.Eventually(t, func() bool {
		events.Dispatch()
		return len(changed) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, watcher.Path(), changed[0])
}

func TestMapWatcherCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.toml")
	watcher, err := NewMapWatcher(path, core.NewEventSystem(1))
	require.NoError(t, err)
	require.NoError(t, watcher.Start())

	assert.NoError(t, watcher.Close())
	assert.NoError(t, watcher.Close())
	assert.Error(t, watcher.Start())
}
