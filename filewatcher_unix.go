//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const inotifyMask = unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_MOVE_SELF | unix.IN_DELETE_SELF

// FileWatcher reports changes of source files through inotify
type FileWatcher struct {
	fd       int
	mu       sync.Mutex
	watchMap map[int]string
	debounce *debouncer
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %v", err)
	}

	return &FileWatcher{
		fd:       fd,
		watchMap: make(map[int]string),
		debounce: newDebouncer(watchDebounce, onChange),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	wd, err := unix.InotifyAddWatch(fw.fd, absPath, inotifyMask)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %v", absPath, err)
	}

	fw.mu.Lock()
	fw.watchMap[wd] = absPath
	fw.mu.Unlock()

	return nil
}

// Watch dispatches change events until ctx is done
func (fw *FileWatcher) Watch(ctx context.Context) {
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*8)
	fds := []unix.PollFd{{Fd: int32(fw.fd), Events: unix.POLLIN}}

	for ctx.Err() == nil {
		ready, err := unix.Poll(fds, int(watchPoll.Milliseconds()))
		if err != nil && err != unix.EINTR {
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Error polling inotify: %v\n", err)
			}
			return
		}
		if ready <= 0 {
			continue
		}

		n, err := unix.Read(fw.fd, buf)
		if err != nil {
			if err != unix.EAGAIN && VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading inotify events: %v\n", err)
			}
			continue
		}

		for offset := 0; offset+unix.SizeofInotifyEvent <= n; {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)
			fw.handle(int(event.Wd), event.Mask)
		}
	}
}

func (fw *FileWatcher) handle(wd int, mask uint32) {
	fw.mu.Lock()
	path := fw.watchMap[wd]
	fw.mu.Unlock()
	if path == "" {
		return
	}

	// editors that save by rename replace the inode, so follow the new file
	if mask&(unix.IN_MOVE_SELF|unix.IN_DELETE_SELF) != 0 {
		fw.mu.Lock()
		delete(fw.watchMap, wd)
		fw.mu.Unlock()
		unix.InotifyRmWatch(fw.fd, uint32(wd))
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
	return unix.Close(fw.fd)
}
