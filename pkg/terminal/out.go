package terminal

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/xux-core/kdbg/pkg/config"
)

// Stdout returns the standard output of the prompt. On windows the
// returned writer translates ANSI escape sequences into console calls.
func Stdout() io.Writer {
	return colorable.NewColorableStdout()
}

// ColorEnabled reports whether output written to f should carry ANSI
// color escapes under the given mode.
func ColorEnabled(mode config.ColorMode, f *os.File) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorAuto:
		if f == nil || os.Getenv("TERM") == "dumb" {
			return false
		}
		return isatty.IsTerminal(f.Fd())
	}
	return false
}
