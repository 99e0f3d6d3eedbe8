package value

import (
	"errors"
	"fmt"
)

// Memory is the debugger side of a pointer dereference.
type Memory interface {
	// Deref reads the value p points to. Implementations return a
	// *DereferenceError when the target is not readable.
	Deref(p Pointer) (Value, error)
}

// DereferenceError is returned when the target of a pointer can not be read.
type DereferenceError struct {
	Addr uint64
	Type string
	Err  error
}

func (err *DereferenceError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("could not dereference (*%s)(%#x): %v", err.Type, err.Addr, err.Err)
	}
	return fmt.Sprintf("could not dereference (*%s)(%#x)", err.Type, err.Addr)
}

func (err *DereferenceError) Unwrap() error {
	return err.Err
}

// MapMemory is a Memory backed by a map from address to value. Lookups
// of unmapped addresses fail.
type MapMemory map[uint64]Value

// Deref implements Memory.
func (m MapMemory) Deref(p Pointer) (Value, error) {
	v, ok := m[p.Addr]
	if !ok {
		return nil, &DereferenceError{Addr: p.Addr, Type: p.Elem, Err: ErrUnmapped}
	}
	return v, nil
}

// ErrUnmapped is the cause of a DereferenceError for an address that is
// not backed by any value.
var ErrUnmapped = errors.New("address not mapped")

// Layers is a Memory searched in order: the first layer mapping an
// address wins. Nil layers are skipped.
type Layers []Memory

// Deref implements Memory.
func (l Layers) Deref(p Pointer) (Value, error) {
	var err error = &DereferenceError{Addr: p.Addr, Type: p.Elem, Err: ErrUnmapped}
	for _, m := range l {
		if m == nil {
			continue
		}
		v, lerr := m.Deref(p)
		if lerr == nil {
			return v, nil
		}
		if !errors.Is(lerr, ErrUnmapped) {
			return nil, lerr
		}
		err = lerr
	}
	return nil, err
}
