package starbind

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"

	"github.com/xux-core/kdbg/pkg/prettyprint"
	"github.com/xux-core/kdbg/pkg/value"
)

func (env *Env) scalar(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var repr starlark.Value
	var typ string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "repr", &repr, "type?", &typ); err != nil {
		return nil, err
	}
	s, ok := starlark.AsString(repr)
	if !ok {
		s = repr.String()
	}
	return env.wrap(value.Scalar{Type: typ, Repr: s}), nil
}

func (env *Env) structValue(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var typ string
	var fields starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "type", &typ, "fields?", &fields); err != nil {
		return nil, err
	}
	s := value.Struct{Type: typ}

	var pairs []starlark.Tuple
	switch x := fields.(type) {
	case starlark.NoneType:
	case *starlark.Dict:
		pairs = x.Items()
	case starlark.Iterable:
		iter := x.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			pair, ok := item.(starlark.Tuple)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("field of %s is not a (name, value) pair: %s", typ, item)
			}
			pairs = append(pairs, pair)
		}
	default:
		return nil, fmt.Errorf("fields of %s must be a dict or a list, not %s", typ, fields.Type())
	}

	for _, pair := range pairs {
		name, ok := starlark.AsString(pair[0])
		if !ok {
			return nil, fmt.Errorf("field name of %s is not a string: %s", typ, pair[0])
		}
		v, err := unwrap(pair[1])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %v", typ, name, err)
		}
		s.Fields = append(s.Fields, value.Field{Name: name, Value: v})
	}
	return env.wrap(s), nil
}

func (env *Env) union(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var typ string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "type", &typ); err != nil {
		return nil, err
	}
	return env.wrap(value.Union{Type: typ}), nil
}

func (env *Env) array(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var elem string
	var elems starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "elem", &elem, "elems", &elems); err != nil {
		return nil, err
	}
	a := value.Array{Elem: elem}
	iter := elems.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		v, err := unwrap(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %v", len(a.Elems), err)
		}
		a.Elems = append(a.Elems, v)
	}
	a.Len = len(a.Elems)
	return env.wrap(a), nil
}

func (env *Env) ptr(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var addrv starlark.Value
	var elem string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "addr", &addrv, "elem", &elem); err != nil {
		return nil, err
	}
	addr, err := toAddr(addrv)
	if err != nil {
		return nil, err
	}
	return env.wrap(value.Pointer{Addr: addr, Elem: elem}), nil
}

func (env *Env) store(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var addrv, v starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "addr", &addrv, "value", &v); err != nil {
		return nil, err
	}
	addr, err := toAddr(addrv)
	if err != nil {
		return nil, err
	}
	val, err := unwrap(v)
	if err != nil {
		return nil, err
	}
	if err := env.ctx.Store(addr, val); err != nil {
		return nil, err
	}
	return env.wrap(value.Pointer{Addr: addr, Elem: val.TypeName()}), nil
}

func (env *Env) deref(p value.Pointer) (value.Value, error) {
	mem := env.ctx.Memory()
	if mem == nil {
		return nil, &value.DereferenceError{Addr: p.Addr, Type: p.Elem, Err: errors.New("no memory")}
	}
	return mem.Deref(p)
}

func (env *Env) derefBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pointer", &x); err != nil {
		return nil, err
	}
	v, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	p, ok := v.(value.Pointer)
	if !ok {
		return nil, fmt.Errorf("%s is not a pointer", v.TypeName())
	}
	if p.IsNull() {
		return starlark.None, nil
	}
	target, err := env.deref(p)
	if err != nil {
		return nil, err
	}
	return env.wrap(target), nil
}

func (env *Env) variable(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	v, ok := env.ctx.Var(name)
	if !ok {
		return nil, fmt.Errorf("could not find symbol value for %s", name)
	}
	return env.wrap(v), nil
}

func (env *Env) vars(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return env.toStarlarkValue(env.ctx.VarNames()), nil
}

func (env *Env) format(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &x); err != nil {
		return nil, err
	}
	v, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	s, err := env.ctx.Formatter().Format(v)
	if err != nil {
		return nil, err
	}
	return starlark.String(s), nil
}

func (env *Env) display(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &x); err != nil {
		return nil, err
	}
	v, err := unwrap(x)
	if err != nil {
		return nil, err
	}
	s, err := env.ctx.Registry().Display(v)
	if err != nil {
		return nil, err
	}
	return starlark.String(s), nil
}

func (env *Env) register(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var typ string
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "type", &typ, "printer?", &fn); err != nil {
		return nil, err
	}
	if fn == nil {
		env.ctx.Registry().RegisterDebugPrinter(env.ctx.Formatter(), typ)
		return starlark.None, nil
	}
	env.ctx.Registry().Register(map[string]prettyprint.Constructor{
		typ: func(v value.Value) prettyprint.Printer {
			return &scriptPrinter{env: env, fn: fn, v: v}
		},
	})
	return starlark.None, nil
}

// scriptPrinter is a pretty printer implemented by a starlark function.
type scriptPrinter struct {
	env *Env
	fn  starlark.Callable
	v   value.Value
}

func (p *scriptPrinter) String() (string, error) {
	thread := &starlark.Thread{Name: "printer", Print: p.env.printFunc()}
	r, err := starlark.Call(thread, p.fn, starlark.Tuple{p.env.wrap(p.v)}, nil)
	if err != nil {
		return "", err
	}
	if s, ok := starlark.AsString(r); ok {
		return s, nil
	}
	return r.String(), nil
}

func (env *Env) resolve(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var addrv starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "addr", &addrv); err != nil {
		return nil, err
	}
	addr, err := toAddr(addrv)
	if err != nil {
		return nil, err
	}
	s, err := env.ctx.Resolve(fmt.Sprintf("%#x", addr))
	if err != nil {
		return nil, err
	}
	return starlark.String(s), nil
}
