//go:build !unix

package gpu

import "os"

var defaultLibraryPaths = []string{
	`C:\Windows\System32\amdocl64.dll`,
	`C:\Windows\System32\amdocl.dll`,
}

func mapLibrary(path string) ([]byte, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() {}, nil
}
