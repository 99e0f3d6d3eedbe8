// Package terminal implements functions for responding to user
// input and dispatching to the pretty printers and the backtrace resolver.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/xux-core/kdbg/pkg/backtrace"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the kdbg prompt.
type Commands struct {
	cmds []command
}

// ExitRequestError is returned when the user
// exits the prompt.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"print", "p"}, cmdFn: printVar, helpMsg: `Prints variables of the snapshot.

	print <variable>...

Values whose type has a registered pretty printer are printed field by field,
following pointers. See also "types".`},
		{aliases: []string{"vars"}, cmdFn: listVars, helpMsg: `Lists the variables of the snapshot.

	vars [prefix]`},
		{aliases: []string{"types"}, cmdFn: listTypes, helpMsg: `Lists the types with a registered pretty printer.

	types [prefix]`},
		{aliases: []string{"resolve", "r"}, cmdFn: resolve, helpMsg: `Resolves return addresses to function and source location.

	resolve <address>...
	resolve <log line>

When the argument contains a return address token (ra=0x...) only that
address is resolved.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config pretty-print-types <type>...

Registers the debug printer for more type names.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"source"}, cmdFn: sourceCommand, helpMsg: `Executes a file containing a list of starlark statements.

	source <path>

If path is a single '-' character an interactive starlark interpreter is started instead.
Global functions named command_<name> become commands of the prompt. Type
'help()' in the interpreter for the list of builtins.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the prompt."},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// aliasesWithPrefix returns every command alias starting with prefix.
func (c *Commands) aliasesWithPrefix(prefix string) []string {
	var r []string
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			if strings.HasPrefix(alias, prefix) {
				r = append(r, alias)
			}
		}
	}
	return r
}

var noCmdError = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return noCmdError
}

func nullCommand(t *Term, args string) error {
	return nil
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 0, '-', 0)
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits the arguments of a command, quoting follows the shell.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal arguments '%s'", args)
	}
	return v[0], nil
}

func printVar(t *Term, args string) error {
	if t.sess.Snapshot == nil {
		return errors.New("no snapshot loaded")
	}
	names, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("not enough arguments")
	}
	for _, name := range names {
		v, ok := t.sess.Snapshot.Var(name)
		if !ok {
			return fmt.Errorf("could not find symbol value for %s", name)
		}
		s, err := t.sess.Registry.Display(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(t.stdout, "%s = %s\n", name, s)
	}
	return nil
}

func listVars(t *Term, args string) error {
	if t.sess.Snapshot == nil {
		return errors.New("no snapshot loaded")
	}
	for _, name := range t.varsWithPrefix(args) {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

func listTypes(t *Term, args string) error {
	for _, name := range t.sess.Registry.Complete(args) {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

func resolve(t *Term, args string) error {
	if t.sess.Resolver == nil {
		return errors.New("no kernel image, restart with 'kdbg repl <snapshot> <image>'")
	}
	var addrs []string
	if line := backtrace.ParseLine(args); line.HasAddress() {
		addrs = []string{line.Address}
	} else {
		var err error
		addrs, err = splitArgs(args)
		if err != nil {
			return err
		}
	}
	if len(addrs) == 0 {
		return errors.New("not enough arguments")
	}
	for _, addr := range addrs {
		res, err := t.sess.Resolver.Resolve(context.Background(), addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(t.stdout, "%s: %s\n", addr, res)
	}
	return nil
}
