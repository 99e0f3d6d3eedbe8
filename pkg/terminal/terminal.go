package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"

	"github.com/xux-core/kdbg/pkg/backtrace"
	"github.com/xux-core/kdbg/pkg/config"
	"github.com/xux-core/kdbg/pkg/logflags"
	"github.com/xux-core/kdbg/pkg/prettyprint"
	"github.com/xux-core/kdbg/pkg/snapshot"
	"github.com/xux-core/kdbg/pkg/terminal/starbind"
	"github.com/xux-core/kdbg/pkg/value"
)

const historyFile string = ".kdbg_history"

// Session is what the prompt operates on. Snapshot and Resolver may be nil.
type Session struct {
	Snapshot  *snapshot.Snapshot
	Formatter *prettyprint.Formatter
	Registry  *prettyprint.Registry
	Resolver  *backtrace.Resolver
}

// Term represents the kdbg prompt.
type Term struct {
	// InitFile is a starlark script executed before the first prompt.
	InitFile string

	sess   Session
	conf   *config.Config
	prompt string
	line   *liner.State
	cmds   *Commands
	stdout io.Writer
	vars   *trie.Trie

	// scratch holds the values stored by scripts, it shadows the snapshot.
	scratch     value.MapMemory
	starlarkEnv *starbind.Env
}

// New returns a new Term.
func New(sess Session, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	if conf == nil {
		conf = &config.Config{}
	}
	scratch := value.MapMemory{}
	if sess.Formatter == nil {
		mem := value.Layers{scratch}
		if sess.Snapshot != nil {
			mem = append(mem, sess.Snapshot)
		}
		sess.Formatter = prettyprint.NewFormatter(mem)
		if conf.MaxDepth != nil {
			sess.Formatter.MaxDepth = *conf.MaxDepth
		}
	}
	if sess.Registry == nil {
		sess.Registry = prettyprint.NewRegistry()
		sess.Registry.RegisterDebugPrinter(sess.Formatter, prettyprint.DefaultTypes...)
		sess.Registry.RegisterDebugPrinter(sess.Formatter, conf.PrettyPrintTypes...)
	}

	vars := trie.New()
	if sess.Snapshot != nil {
		for _, name := range sess.Snapshot.VarNames() {
			vars.Add(name, nil)
		}
	}

	t := &Term{
		sess:    sess,
		conf:    conf,
		prompt:  "(kdbg) ",
		cmds:    cmds,
		stdout:  Stdout(),
		vars:    vars,
		scratch: scratch,
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// SetStdout redirects the output of commands and scripts to w.
func (t *Term) SetStdout(w io.Writer) {
	t.stdout = w
	t.starlarkEnv.Redirect(w)
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
}

func (t *Term) varsWithPrefix(prefix string) []string {
	names := t.vars.PrefixSearch(prefix)
	sort.Strings(names)
	return names
}

// complete returns the completions of line: command names for the first
// word, variable names after print and type names after types.
func (t *Term) complete(line string) []string {
	vals := strings.SplitN(line, " ", 2)
	if len(vals) == 1 {
		return t.cmds.aliasesWithPrefix(strings.ToLower(line))
	}
	cmdname, args := vals[0], vals[1]
	words := strings.Fields(args)
	last := ""
	if len(words) > 0 && !strings.HasSuffix(args, " ") {
		last = words[len(words)-1]
	}
	head := line[:len(line)-len(last)]

	var names []string
	switch {
	case matches(t.cmds, cmdname, "print"):
		names = t.varsWithPrefix(last)
	case matches(t.cmds, cmdname, "types"):
		names = t.sess.Registry.Complete(last)
	}
	r := make([]string, 0, len(names))
	for _, name := range names {
		r = append(r, head+name)
	}
	return r
}

// matches reports whether cmdstr is an alias of the command called name.
func matches(c *Commands, cmdstr, name string) bool {
	for _, cmd := range c.cmds {
		if cmd.aliases[0] == name {
			return cmd.match(cmdstr)
		}
	}
	return false
}

// Run runs the prompt until the user exits, returning the exit status.
func (t *Term) Run() (int, error) {
	t.line = liner.NewLiner()
	defer t.Close()

	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}
	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		if err := t.Source(t.InitFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			return 1, errors.New("prompt for input failed")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			var missing *backtrace.ToolMissingError
			if errors.As(err, &missing) {
				fmt.Fprintln(os.Stderr, err)
				return 1, nil
			}
			logflags.TerminalLogger().WithError(err).Debugf("command %q failed", cmdstr)
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// Call executes a single command of the prompt.
func (t *Term) Call(cmdstr string) error {
	return t.cmds.Call(cmdstr, t)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_TRUNC, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}
	return 0, nil
}
