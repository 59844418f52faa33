//go:build !linux && !darwin

package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileWatcher reports changes of source files by polling their mtime
type FileWatcher struct {
	mu       sync.Mutex
	watchMap map[string]time.Time
	debounce *debouncer
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	return &FileWatcher{
		watchMap: make(map[string]time.Time),
		debounce: newDebouncer(watchDebounce, onChange),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	fw.watchMap[absPath] = info.ModTime()
	fw.mu.Unlock()

	return nil
}

// Watch dispatches change events until ctx is done
func (fw *FileWatcher) Watch(ctx context.Context) {
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fw.checkFiles()
		case <-ctx.Done():
			return
		}
	}
}

func (fw *FileWatcher) checkFiles() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for path, lastMod := range fw.watchMap {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(lastMod) {
			fw.watchMap[path] = info.ModTime()
			fw.debounce.touch(path)
		}
	}
}

func (fw *FileWatcher) Close() error {
	fw.debounce.stop()
	return nil
}
