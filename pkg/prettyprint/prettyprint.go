// Package prettyprint renders kernel values for display.
//
// A Formatter walks a value.Value recursively: pointers are followed and
// printed as their target, structs print their fields in declaration order,
// unions are printed opaquely and arrays print every element.
package prettyprint

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/xux-core/kdbg/pkg/logflags"
	"github.com/xux-core/kdbg/pkg/value"
)

const (
	// DefaultMaxDepth is the nesting depth after which subtrees are elided.
	DefaultMaxDepth = 64

	nullString   = "null"
	cycleString  = "<cycle>"
	elidedString = "..."
)

var errNoMemory = errors.New("no target memory")

// Formatter formats values, dereferencing pointers through a value.Memory.
type Formatter struct {
	mem value.Memory
	// MaxDepth bounds how deep Format descends, zero means DefaultMaxDepth.
	MaxDepth int
}

// NewFormatter returns a Formatter that reads pointer targets from mem.
func NewFormatter(mem value.Memory) *Formatter {
	return &Formatter{mem: mem, MaxDepth: DefaultMaxDepth}
}

// Format returns the display string of v.
// Errors returned by the memory while following a pointer are returned
// to the caller wrapped, a *value.DereferenceError can be recovered with
// errors.As.
func (f *Formatter) Format(v value.Value) (string, error) {
	var buf bytes.Buffer
	w := &walker{f: f, buf: &buf, path: make(map[uint64]bool)}
	if err := w.writeTo(v, 0); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (f *Formatter) maxDepth() int {
	if f.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return f.MaxDepth
}

// walker holds the state of a single Format call. path contains the
// addresses of the pointers being expanded between the root and the
// current value.
type walker struct {
	f    *Formatter
	buf  io.Writer
	path map[uint64]bool
}

func (w *walker) writeTo(v value.Value, depth int) error {
	if depth > w.f.maxDepth() {
		fmt.Fprint(w.buf, elidedString)
		return nil
	}
	switch v := v.(type) {
	case value.Pointer:
		return w.writePointerTo(v, depth)
	case value.Struct:
		return w.writeStructTo(v, depth)
	case value.Union:
		fmt.Fprintf(w.buf, "%s { %s }", v.Type, elidedString)
	case value.Array:
		return w.writeArrayTo(v, depth)
	case value.Scalar:
		fmt.Fprint(w.buf, v.Repr)
	case nil:
		return errors.New("missing value")
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

func (w *walker) writePointerTo(p value.Pointer, depth int) error {
	if p.IsNull() {
		fmt.Fprint(w.buf, nullString)
		return nil
	}
	if w.path[p.Addr] {
		logflags.FormatterLogger().Debugf("cycle through (*%s)(%#x)", p.Elem, p.Addr)
		fmt.Fprint(w.buf, cycleString)
		return nil
	}
	if w.f.mem == nil {
		return &value.DereferenceError{Addr: p.Addr, Type: p.Elem, Err: errNoMemory}
	}
	target, err := w.f.mem.Deref(p)
	if err != nil {
		return fmt.Errorf("formatting (*%s)(%#x): %w", p.Elem, p.Addr, err)
	}
	w.path[p.Addr] = true
	err = w.writeTo(target, depth+1)
	delete(w.path, p.Addr)
	return err
}

func (w *walker) writeStructTo(s value.Struct, depth int) error {
	fmt.Fprintf(w.buf, "%s { ", s.Type)
	for i := range s.Fields {
		if i > 0 {
			fmt.Fprint(w.buf, ", ")
		}
		fmt.Fprintf(w.buf, "%s=", s.Fields[i].Name)
		if err := w.writeTo(s.Fields[i].Value, depth+1); err != nil {
			return err
		}
	}
	fmt.Fprint(w.buf, " }")
	return nil
}

func (w *walker) writeArrayTo(a value.Array, depth int) error {
	if a.Len < 0 {
		return fmt.Errorf("array of %s has negative length %d", a.Elem, a.Len)
	}
	if len(a.Elems) < a.Len {
		return fmt.Errorf("array of %s: element %d of %d missing", a.Elem, len(a.Elems), a.Len)
	}
	fmt.Fprint(w.buf, "[")
	for i := 0; i < a.Len; i++ {
		if i > 0 {
			fmt.Fprint(w.buf, ", ")
		}
		if err := w.writeTo(a.Elems[i], depth+1); err != nil {
			return err
		}
	}
	fmt.Fprint(w.buf, "]")
	return nil
}
