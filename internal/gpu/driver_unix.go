//go:build unix

package gpu

import (
	"os"

	"golang.org/x/sys/unix"
)

var defaultLibraryPaths = []string{
	"/usr/lib/x86_64-linux-gnu/libamdocl64.so",
	"/usr/lib/x86_64-linux-gnu/amdgpu-pro/libamdocl64.so",
	"/opt/amdgpu-pro/lib/x86_64-linux-gnu/libamdocl64.so",
	"/usr/lib64/libamdocl64.so",
	"/usr/lib/libamdocl64.so",
}

// mapLibrary maps the file read-only. The returned release func unmaps it.
func mapLibrary(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.Size() == 0 {
		return nil, func() {}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, func() { unix.Munmap(data) }, nil
}
