package backtrace

import "errors"

// Command is not supported on windows.
type Command struct{}

// StartCommand always fails on windows.
func StartCommand(cmdline string) (*Command, error) {
	return nil, errors.New("running a command under a pseudo-terminal is not supported on windows")
}

func (c *Command) Read(p []byte) (int, error) {
	return 0, errors.New("not supported")
}

func (c *Command) Close() error {
	return nil
}

func (c *Command) Interrupt() error {
	return nil
}
