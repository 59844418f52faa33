package main

import (
	"os"

	"github.com/xyproto/env/v2"
	"golang.org/x/term"
)

// useColor reports whether diagnostics written to f should be colored
func useColor(f *os.File) bool {
	if env.Has("NO_COLOR") {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
