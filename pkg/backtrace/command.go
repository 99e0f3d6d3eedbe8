package backtrace

import (
	"errors"
	"fmt"

	"github.com/cosiner/argv"
)

// SplitCommandLine splits cmdline into the program and its arguments.
// Quoting follows the shell, pipes and backticks are rejected.
func SplitCommandLine(cmdline string) ([]string, error) {
	v, err := argv.Argv(cmdline,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal commandline '%s'", cmdline)
	}
	if len(v[0]) == 0 {
		return nil, errors.New("empty commandline")
	}
	return v[0], nil
}
