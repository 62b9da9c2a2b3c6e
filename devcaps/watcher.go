package devcaps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"UCEGo/global"
)

// Watcher reloads the device settings file whenever it is rewritten on disk and
// feeds the result through the monitor, so edits behave like live setting
// changes.
type Watcher struct {
	monitor *Monitor
	path    string
	watcher *fsnotify.Watcher
	closed  chan struct{}
}

func LoadSettingsFile(monitor *Monitor, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}
	monitor.ApplySnapshot(snapshot)
	return nil
}

func NewWatcher(monitor *Monitor, path string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Editors replace files instead of rewriting them, so watch the directory
	// and filter on the base name.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch settings directory: %w", err)
	}

	w := &Watcher{
		monitor: monitor,
		path:    path,
		watcher: watcher,
		closed:  make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

func (w *Watcher) watchLoop() {
	defer global.LogCallStack()
	base := filepath.Base(w.path)
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if err := LoadSettingsFile(w.monitor, w.path); err != nil {
					global.LogError(global.LTSettings, fmt.Sprintf("reload failed - %v", err))
					continue
				}
				global.LogInfo(global.LTSettings, fmt.Sprintf("reloaded [%s]", w.path))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			global.LogError(global.LTSettings, fmt.Sprintf("watcher error - %v", err))
		}
	}
}

func (w *Watcher) Close() {
	close(w.closed)
	w.watcher.Close()
}
