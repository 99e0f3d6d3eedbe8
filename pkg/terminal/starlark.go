package terminal

import (
	"context"
	"errors"
	"fmt"

	"github.com/xux-core/kdbg/pkg/prettyprint"
	"github.com/xux-core/kdbg/pkg/value"
)

type starlarkContext struct {
	term *Term
}

func (ctx starlarkContext) Var(name string) (value.Value, bool) {
	if ctx.term.sess.Snapshot == nil {
		return nil, false
	}
	return ctx.term.sess.Snapshot.Var(name)
}

func (ctx starlarkContext) VarNames() []string {
	if ctx.term.sess.Snapshot == nil {
		return nil
	}
	return ctx.term.sess.Snapshot.VarNames()
}

func (ctx starlarkContext) Memory() value.Memory {
	mem := value.Layers{ctx.term.scratch}
	if ctx.term.sess.Snapshot != nil {
		mem = append(mem, ctx.term.sess.Snapshot)
	}
	return mem
}

func (ctx starlarkContext) Store(addr uint64, v value.Value) error {
	if addr == 0 {
		return errors.New("can not store a value at the null address")
	}
	ctx.term.scratch[addr] = v
	return nil
}

func (ctx starlarkContext) Formatter() *prettyprint.Formatter {
	return ctx.term.sess.Formatter
}

func (ctx starlarkContext) Registry() *prettyprint.Registry {
	return ctx.term.sess.Registry
}

func (ctx starlarkContext) Resolve(addr string) (string, error) {
	if ctx.term.sess.Resolver == nil {
		return "", errors.New("no kernel image")
	}
	res, err := ctx.term.sess.Resolver.Resolve(context.Background(), addr)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	cmdfn := func(t *Term, args string) error {
		return fn(args)
	}

	found := false
	for i := range ctx.term.cmds.cmds {
		cmd := &ctx.term.cmds.cmds[i]
		for _, alias := range cmd.aliases {
			if alias == name {
				cmd.cmdFn = cmdfn
				cmd.helpMsg = helpMsg
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		newcmd := command{
			aliases: []string{name},
			helpMsg: helpMsg,
			cmdFn:   cmdfn,
		}
		ctx.term.cmds.cmds = append(ctx.term.cmds.cmds, newcmd)
	}
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.Call(cmdstr, ctx.term)
}

// Source executes the starlark script at path, calling its main function
// if it defines one.
func (t *Term) Source(path string) error {
	_, err := t.starlarkEnv.Execute(path, nil, "main", nil)
	return err
}

func sourceCommand(t *Term, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}
	if args == "-" {
		return t.starlarkEnv.REPL()
	}
	return t.Source(args)
}
