//go:build darwin

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// FileWatcher reports changes of source files through kqueue
type FileWatcher struct {
	kq       int
	mu       sync.Mutex
	watchMap map[int]string
	debounce *debouncer
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %v", err)
	}

	return &FileWatcher{
		kq:       kq,
		watchMap: make(map[int]string),
		debounce: newDebouncer(watchDebounce, onChange),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fd, err := unix.Open(absPath, unix.O_RDONLY|unix.O_EVTONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", absPath, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_EXTEND | unix.NOTE_DELETE | unix.NOTE_RENAME,
	}
	if _, err := unix.Kevent(fw.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to add kevent for %s: %v", absPath, err)
	}

	fw.mu.Lock()
	fw.watchMap[fd] = absPath
	fw.mu.Unlock()

	return nil
}

// Watch dispatches change events until ctx is done
func (fw *FileWatcher) Watch(ctx context.Context) {
	events := make([]unix.Kevent_t, 8)
	timeout := unix.NsecToTimespec(watchPoll.Nanoseconds())

	for ctx.Err() == nil {
		n, err := unix.Kevent(fw.kq, nil, events, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading kevent: %v\n", err)
			}
			return
		}

		for _, event := range events[:n] {
			fw.handle(int(event.Ident), event.Fflags)
		}
	}
}

func (fw *FileWatcher) handle(fd int, fflags uint32) {
	fw.mu.Lock()
	path := fw.watchMap[fd]
	fw.mu.Unlock()
	if path == "" {
		return
	}

	// a replaced file needs a descriptor on the new inode
	if fflags&(unix.NOTE_DELETE|unix.NOTE_RENAME) != 0 {
		fw.mu.Lock()
		delete(fw.watchMap, fd)
		fw.mu.Unlock()
		unix.Close(fd)
		if err := fw.AddFile(path); err != nil {
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Stopped watching %s: %v\n", path, err)
			}
			return
		}
	}
	fw.debounce.touch(path)
}

func (fw *FileWatcher) Close() error {
	fw.debounce.stop()

	fw.mu.Lock()
	defer fw.mu.Unlock()
	for fd := range fw.watchMap {
		unix.Close(fd)
	}
	return unix.Close(fw.kq)
}
