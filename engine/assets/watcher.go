package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vulx/engine/core"
)

// ShaderWatcher flags shader files that changed on disk. The watch loop runs
// on its own goroutine and only sets a flag; the render loop polls Dirty.
type ShaderWatcher struct {
	fsnotify *fsnotify.Watcher
	dirty    atomic.Bool
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

// NewShaderWatcher watches the given files or directories.
func NewShaderWatcher(paths ...string) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	sw := &ShaderWatcher{
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		// Files are watched through their directory.
		dir := p
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			dir = filepath.Dir(p)
		}
		if err := fsWatch.Add(dir); err != nil {
			fsWatch.Close()
			return nil, err
		}
	}
	go sw.start()
	return sw, nil
}

func (sw *ShaderWatcher) start() {
	defer close(sw.stopped)
	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			if DetermineShaderKind(e.Name) == ShaderKindNone {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				core.LogInfo("shader %s changed", e.Name)
				sw.dirty.Store(true)
			}

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sw.done:
			return
		}
	}
}

// Dirty reports whether a shader changed since the last call.
func (sw *ShaderWatcher) Dirty() bool {
	return sw.dirty.Swap(false)
}

func (sw *ShaderWatcher) Close() error {
	if sw.isClosed {
		return errors.New("shader watcher already closed")
	}
	sw.isClosed = true
	close(sw.done)
	<-sw.stopped
	return sw.fsnotify.Close()
}
