package assets

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/renderworld/engine/core"
)

// Editors often save with several writes, or with a rename over the target.
const defaultDebounce = 100 * time.Millisecond

// MapWatcher posts EVENT_CODE_MAP_CHANGED when the watched map file changes
// on disk. The parent directory is watched, so files replaced by a rename are
// still seen.
type MapWatcher struct {
	path     string
	events   *core.EventSystem
	debounce time.Duration

	mutex    sync.Mutex
	fsnotify *fsnotify.Watcher
	timer    *time.Timer
	isClosed bool
	done     chan struct{}
	stopped  chan struct{}
}

func NewMapWatcher(path string, events *core.EventSystem) (*MapWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &MapWatcher{
		path:     abs,
		events:   events,
		debounce: defaultDebounce,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

func (mw *MapWatcher) Path() string {
	return mw.path
}

func (mw *MapWatcher) Start() error {
	if mw.isClosed {
		return errors.New("map watcher already closed")
	}
	if err := mw.fsnotify.Add(filepath.Dir(mw.path)); err != nil {
		return err
	}
	go mw.start()
	core.LogInfo("watching map file %s", mw.path)
	return nil
}

func (mw *MapWatcher) start() {
	defer close(mw.stopped)
	for {
		select {
		case e, ok := <-mw.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != mw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				mw.schedule()
			}

		case err, ok := <-mw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)

		case <-mw.done:
			return
		}
	}
}

// schedule posts the change once no further event arrives within the debounce window.
func (mw *MapWatcher) schedule() {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if mw.isClosed {
		return
	}
	if mw.timer != nil {
		mw.timer.Reset(mw.debounce)
		return
	}
	mw.timer = time.AfterFunc(mw.debounce, func() {
		core.LogDebug("map file %s changed", mw.path)
		_ = mw.events.Post(core.EventContext{
			Type: core.EVENT_CODE_MAP_CHANGED,
			Data: &core.FileEvent{Path: mw.path},
		})
	})
}

func (mw *MapWatcher) Close() error {
	mw.mutex.Lock()
	if mw.isClosed {
		mw.mutex.Unlock()
		return nil
	}
	mw.isClosed = true
	if mw.timer != nil {
		mw.timer.Stop()
	}
	mw.mutex.Unlock()

	close(mw.done)
	err := mw.fsnotify.Close()
	return err
}
