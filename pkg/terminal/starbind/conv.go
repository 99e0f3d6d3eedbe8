package starbind

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.starlark.net/starlark"

	"github.com/xux-core/kdbg/pkg/value"
)

// toStarlarkValue converts Go values passed to a script's main function
// into starlark values.
func (env *Env) toStarlarkValue(v interface{}) starlark.Value {
	switch v := v.(type) {
	case uint64:
		return starlark.MakeUint64(v)
	case int64:
		return starlark.MakeInt64(v)
	case int:
		return starlark.MakeInt(v)
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case []string:
		elems := make([]starlark.Value, len(v))
		for i := range v {
			elems[i] = starlark.String(v[i])
		}
		return starlark.NewList(elems)
	case value.Value:
		return env.wrap(v)
	case nil:
		return starlark.None
	case error:
		return starlark.String(v.Error())
	default:
		return starlark.String(fmt.Sprintf("%v", v))
	}
}

// wrap converts a value.Value into a starlark value. Arrays are indexable,
// every other kind exposes attributes.
func (env *Env) wrap(v value.Value) starlark.Value {
	if a, ok := v.(value.Array); ok {
		return arrayAsStarlarkValue{valueAsStarlarkValue{a, env}}
	}
	return valueAsStarlarkValue{v, env}
}

// unwrap converts a starlark value into a value.Value. Starlark
// integers, booleans and strings become scalars.
func unwrap(x starlark.Value) (value.Value, error) {
	switch x := x.(type) {
	case valueAsStarlarkValue:
		return x.v, nil
	case arrayAsStarlarkValue:
		return x.v, nil
	case starlark.Int:
		return value.Scalar{Type: "isize", Repr: x.String()}, nil
	case starlark.Bool:
		return value.Bool(bool(x)), nil
	case starlark.String:
		return value.Str(string(x)), nil
	case starlark.NoneType:
		return nil, errors.New("None is not a value")
	}
	return nil, fmt.Errorf("can not convert %s to a value", x.Type())
}

// toAddr converts an integer or a numeric string (0x prefixed for hex)
// into an address.
func toAddr(x starlark.Value) (uint64, error) {
	switch x := x.(type) {
	case starlark.Int:
		addr, ok := x.Uint64()
		if !ok {
			return 0, fmt.Errorf("address %s out of range", x)
		}
		return addr, nil
	case starlark.String:
		addr, err := strconv.ParseUint(string(x), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid address %q", string(x))
		}
		return addr, nil
	}
	return 0, fmt.Errorf("address must be an int or a string, not %s", x.Type())
}

// valueAsStarlarkValue exposes a value.Value to scripts. Struct fields
// are attributes, pointers are dereferenced automatically when one of
// the fields of their target is read.
type valueAsStarlarkValue struct {
	v   value.Value
	env *Env
}

var _ starlark.HasAttrs = valueAsStarlarkValue{}
var _ starlark.Mapping = valueAsStarlarkValue{}

func (v valueAsStarlarkValue) Freeze() {
}

func (v valueAsStarlarkValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("not hashable")
}

func (v valueAsStarlarkValue) String() string {
	s, err := v.env.ctx.Registry().Display(v.v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return s
}

func (v valueAsStarlarkValue) Truth() starlark.Bool {
	if p, ok := v.v.(value.Pointer); ok {
		return starlark.Bool(!p.IsNull())
	}
	return true
}

func (v valueAsStarlarkValue) Type() string {
	return v.v.Kind().String()
}

const (
	typeNameAttr = "type_name"
	addrAttr     = "addr"
	elemAttr     = "elem"
	reprAttr     = "repr"
)

func (v valueAsStarlarkValue) Attr(name string) (starlark.Value, error) {
	switch x := v.v.(type) {
	case value.Struct:
		if f, ok := x.Field(name); ok {
			return v.env.wrap(f), nil
		}
	case value.Pointer:
		switch name {
		case addrAttr:
			return starlark.MakeUint64(x.Addr), nil
		case elemAttr:
			return starlark.String(x.Elem), nil
		case typeNameAttr:
		default:
			if x.IsNull() {
				return nil, fmt.Errorf("null pointer dereference reading %s", name)
			}
			target, err := v.env.deref(x)
			if err != nil {
				return nil, err
			}
			return valueAsStarlarkValue{target, v.env}.Attr(name)
		}
	case value.Scalar:
		if name == reprAttr {
			return starlark.String(x.Repr), nil
		}
	}
	if name == typeNameAttr {
		return starlark.String(v.v.TypeName()), nil
	}
	return nil, nil // no such field or method
}

func (v valueAsStarlarkValue) AttrNames() []string {
	names := []string{typeNameAttr}
	switch x := v.v.(type) {
	case value.Struct:
		for _, f := range x.Fields {
			names = append(names, f.Name)
		}
	case value.Pointer:
		names = append(names, addrAttr, elemAttr)
	case value.Scalar:
		names = append(names, reprAttr)
	}
	sort.Strings(names)
	return names
}

// Get implements p[0] for pointers.
func (v valueAsStarlarkValue) Get(key starlark.Value) (starlark.Value, bool, error) {
	p, ok := v.v.(value.Pointer)
	if !ok {
		return nil, false, fmt.Errorf("%s is not indexable", v.v.TypeName())
	}
	if idx, ok := key.(starlark.Int); !ok || idx.Sign() != 0 {
		return nil, false, fmt.Errorf("pointers can only be indexed with 0")
	}
	if p.IsNull() {
		return nil, false, errors.New("null pointer dereference")
	}
	target, err := v.env.deref(p)
	if err != nil {
		return nil, false, err
	}
	return v.env.wrap(target), true, nil
}

// arrayAsStarlarkValue implements the Indexable and Sequence starlark
// interfaces for arrays.
type arrayAsStarlarkValue struct {
	valueAsStarlarkValue
}

var _ starlark.Indexable = arrayAsStarlarkValue{}
var _ starlark.Sequence = arrayAsStarlarkValue{}

func (v arrayAsStarlarkValue) array() value.Array {
	return v.v.(value.Array)
}

func (v arrayAsStarlarkValue) Truth() starlark.Bool {
	return v.Len() != 0
}

func (v arrayAsStarlarkValue) Index(i int) starlark.Value {
	return v.env.wrap(v.array().Elems[i])
}

// Get overrides the pointer indexing of valueAsStarlarkValue, starlark
// looks up Mapping before Indexable.
func (v arrayAsStarlarkValue) Get(key starlark.Value) (starlark.Value, bool, error) {
	i, err := starlark.AsInt32(key)
	if err != nil {
		return nil, false, fmt.Errorf("array index: %v", err)
	}
	n := v.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false, fmt.Errorf("index %d out of range [0:%d]", i, n)
	}
	return v.Index(i), true, nil
}

func (v arrayAsStarlarkValue) Len() int {
	a := v.array()
	if len(a.Elems) < a.Len {
		return len(a.Elems)
	}
	return a.Len
}

func (v arrayAsStarlarkValue) Iterate() starlark.Iterator {
	return &arrayIterator{0, v}
}

type arrayIterator struct {
	cur int
	v   arrayAsStarlarkValue
}

func (it *arrayIterator) Done() {
}

func (it *arrayIterator) Next(p *starlark.Value) bool {
	if it.cur >= it.v.Len() {
		return false
	}
	*p = it.v.Index(it.cur)
	it.cur++
	return true
}
