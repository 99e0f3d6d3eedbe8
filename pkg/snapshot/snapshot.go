// Package snapshot loads values captured from a kernel debugging session.
//
// A snapshot is a YAML document with two sections: memory, a list of typed
// values stored at addresses, and vars, named values (usually pointers into
// memory). A Snapshot implements value.Memory so that pointers found in its
// values can be followed by the pretty printers.
//
//	memory:
//	  - addr: 0x80200000
//	    value: {struct: Foo, fields: [{name: a, value: {scalar: 1}}]}
//	vars:
//	  foo: {ptr: 0x80200000, elem: Foo}
package snapshot

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/xux-core/kdbg/pkg/logflags"
	"github.com/xux-core/kdbg/pkg/value"
)

// Snapshot is a decoded snapshot.
type Snapshot struct {
	mem  value.MapMemory
	vars map[string]value.Value
}

type document struct {
	Memory []cell           `yaml:"memory"`
	Vars   map[string]*node `yaml:"vars"`
}

type cell struct {
	Addr  uint64 `yaml:"addr"`
	Value *node  `yaml:"value"`
}

type node struct {
	Scalar *string     `yaml:"scalar"`
	Type   string      `yaml:"type"`
	Struct *string     `yaml:"struct"`
	Fields []fieldNode `yaml:"fields"`
	Union  *string     `yaml:"union"`
	Array  *string     `yaml:"array"`
	Len    *int        `yaml:"len"`
	Elems  []*node     `yaml:"elems"`
	Ptr    *uint64     `yaml:"ptr"`
	Elem   string      `yaml:"elem"`
}

type fieldNode struct {
	Name  string `yaml:"name"`
	Value *node  `yaml:"value"`
}

// Load reads and decodes the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	logflags.SnapshotLogger().Debugf("loaded %s: %d memory cells, %d variables", path, len(s.mem), len(s.vars))
	return s, nil
}

// Parse decodes a snapshot document.
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, err
	}
	s := &Snapshot{
		mem:  make(value.MapMemory, len(doc.Memory)),
		vars: make(map[string]value.Value, len(doc.Vars)),
	}
	for i, c := range doc.Memory {
		if c.Addr == 0 {
			return nil, fmt.Errorf("memory[%d]: address 0 is the null pointer", i)
		}
		if _, dup := s.mem[c.Addr]; dup {
			return nil, fmt.Errorf("memory[%d]: address %#x defined twice", i, c.Addr)
		}
		v, err := c.Value.decode(fmt.Sprintf("memory[%d].value", i))
		if err != nil {
			return nil, err
		}
		s.mem[c.Addr] = v
	}
	for name, n := range doc.Vars {
		v, err := n.decode("vars." + name)
		if err != nil {
			return nil, err
		}
		s.vars[name] = v
	}
	return s, nil
}

func (n *node) decode(path string) (value.Value, error) {
	if n == nil {
		return nil, fmt.Errorf("%s: missing value", path)
	}
	tags := 0
	for _, set := range []bool{n.Scalar != nil, n.Struct != nil, n.Union != nil, n.Array != nil, n.Ptr != nil} {
		if set {
			tags++
		}
	}
	if tags != 1 {
		return nil, fmt.Errorf("%s: value must have exactly one of scalar, struct, union, array or ptr (has %d)", path, tags)
	}

	switch {
	case n.Scalar != nil:
		return value.Scalar{Type: n.Type, Repr: *n.Scalar}, nil

	case n.Struct != nil:
		s := value.Struct{Type: *n.Struct, Fields: make([]value.Field, 0, len(n.Fields))}
		for i, f := range n.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("%s.fields[%d]: missing field name", path, i)
			}
			v, err := f.Value.decode(fmt.Sprintf("%s.%s", path, f.Name))
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, value.Field{Name: f.Name, Value: v})
		}
		return s, nil

	case n.Union != nil:
		return value.Union{Type: *n.Union}, nil

	case n.Array != nil:
		a := value.Array{Elem: *n.Array, Len: len(n.Elems)}
		if n.Len != nil {
			a.Len = *n.Len
		}
		if a.Len != len(n.Elems) {
			return nil, fmt.Errorf("%s: array declares %d elements but lists %d", path, a.Len, len(n.Elems))
		}
		a.Elems = make([]value.Value, 0, len(n.Elems))
		for i, e := range n.Elems {
			v, err := e.decode(fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			a.Elems = append(a.Elems, v)
		}
		return a, nil

	default:
		return value.Pointer{Addr: *n.Ptr, Elem: n.Elem}, nil
	}
}

// Deref implements value.Memory.
func (s *Snapshot) Deref(p value.Pointer) (value.Value, error) {
	v, err := s.mem.Deref(p)
	if err != nil {
		return nil, err
	}
	if p.Elem != "" && v.TypeName() != "" && v.TypeName() != p.Elem {
		logflags.SnapshotLogger().Warnf("value at %#x has type %s, read through a *%s", p.Addr, v.TypeName(), p.Elem)
	}
	return v, nil
}

// Var returns the variable called name.
func (s *Snapshot) Var(name string) (value.Value, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// VarNames returns the names of all variables, sorted.
func (s *Snapshot) VarNames() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
