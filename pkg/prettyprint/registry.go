package prettyprint

import (
	"fmt"
	"sort"
	"sync"

	"github.com/derekparker/trie"

	"github.com/xux-core/kdbg/pkg/logflags"
	"github.com/xux-core/kdbg/pkg/value"
)

// Printer renders one value.
type Printer interface {
	String() (string, error)
}

// Constructor builds the Printer for a value of a registered type.
type Constructor func(v value.Value) Printer

// DefaultTypes are the kernel types registered with the debug printer
// unless the configuration adds more.
var DefaultTypes = []string{"TaskControlBlock", "TaskUserResource"}

// Registry associates type names with printers. It is built once at
// startup and handed to whatever displays values.
type Registry struct {
	mu    sync.Mutex
	names *trie.Trie
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: trie.New()}
}

// Register adds every entry of printers to the registry. Names that are
// already registered keep their current constructor.
func (r *Registry) Register(printers map[string]Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cons := range printers {
		if cons == nil {
			continue
		}
		if _, found := r.names.Find(name); found {
			logflags.FormatterLogger().Debugf("printer for %s already registered", name)
			continue
		}
		r.names.Add(name, cons)
	}
}

// RegisterDebugPrinter registers the recursive debug printer of f for
// every name in types.
func (r *Registry) RegisterDebugPrinter(f *Formatter, types ...string) {
	printers := make(map[string]Constructor, len(types))
	for _, name := range types {
		printers[name] = DebugPrinter(f)
	}
	r.Register(printers)
}

// Lookup returns the constructor registered for typeName.
func (r *Registry) Lookup(typeName string) (Constructor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, found := r.names.Find(typeName)
	if !found {
		return nil, false
	}
	return node.Meta().(Constructor), true
}

// Complete returns the registered names starting with prefix, sorted.
func (r *Registry) Complete(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := r.names.PrefixSearch(prefix)
	sort.Strings(names)
	return names
}

// Display renders v with the printer registered for its static type. A
// non-null pointer whose target type is registered is displayed by that
// printer as well. Values of other types get the default rendering.
func (r *Registry) Display(v value.Value) (string, error) {
	if v == nil {
		return "", fmt.Errorf("missing value")
	}
	cons, ok := r.Lookup(v.TypeName())
	if !ok {
		if p, isptr := v.(value.Pointer); isptr && !p.IsNull() {
			cons, ok = r.Lookup(p.Elem)
		}
	}
	if ok {
		return cons(v).String()
	}
	return defaultString(v), nil
}

// defaultString is the terse rendering used for unregistered types.
func defaultString(v value.Value) string {
	switch v := v.(type) {
	case value.Pointer:
		if v.IsNull() {
			return nullString
		}
		return fmt.Sprintf("(*%s)(%#x)", v.Elem, v.Addr)
	case value.Struct:
		return v.Type
	case value.Union:
		return v.Type
	case value.Array:
		return v.TypeName()
	case value.Scalar:
		return v.Repr
	}
	return fmt.Sprintf("%v", v)
}

type debugPrinter struct {
	f *Formatter
	v value.Value
}

func (p debugPrinter) String() (string, error) {
	return p.f.Format(p.v)
}

// DebugPrinter returns a constructor for printers that render every field
// of a value recursively using f.
func DebugPrinter(f *Formatter) Constructor {
	return func(v value.Value) Printer {
		return debugPrinter{f: f, v: v}
	}
}
