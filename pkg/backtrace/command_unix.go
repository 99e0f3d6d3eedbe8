//go:build !windows
// +build !windows

package backtrace

import (
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/xux-core/kdbg/pkg/logflags"
)

// Command is a process whose console output is read through a
// pseudo-terminal, so that the kernel console running inside it (usually
// QEMU) writes one line at a time.
type Command struct {
	cmd *exec.Cmd
	tty *os.File
}

// StartCommand starts cmdline under a new pseudo-terminal.
func StartCommand(cmdline string) (*Command, error) {
	args, err := SplitCommandLine(cmdline)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(args[0], args[1:]...)
	tty, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	logflags.ResolverLogger().Debugf("started %q, pid %d", cmdline, cmd.Process.Pid)
	return &Command{cmd: cmd, tty: tty}, nil
}

// Read reads the output of the process. Once the process has exited and
// its output is drained Read returns io.EOF.
func (c *Command) Read(p []byte) (int, error) {
	n, err := c.tty.Read(p)
	if err != nil && errors.Is(err, unix.EIO) {
		// Linux reports EIO on the master side once the slave is closed.
		return n, io.EOF
	}
	return n, err
}

// Interrupt sends SIGINT to the process. The process runs in its own
// session, a Ctrl-C typed on the controlling terminal does not reach it.
func (c *Command) Interrupt() error {
	return c.cmd.Process.Signal(unix.SIGINT)
}

// Close closes the terminal and waits for the process to exit.
func (c *Command) Close() error {
	c.tty.Close()
	if c.cmd.ProcessState == nil {
		c.cmd.Process.Signal(os.Interrupt)
	}
	return c.cmd.Wait()
}
