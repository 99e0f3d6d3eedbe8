package value

import (
	"errors"
	"testing"
)

type brokenMemory struct{}

var errBroken = errors.New("bus error")

func (brokenMemory) Deref(p Pointer) (Value, error) {
	return nil, &DereferenceError{Addr: p.Addr, Type: p.Elem, Err: errBroken}
}

func TestMapMemory(t *testing.T) {
	mem := MapMemory{0x10: Int(1)}
	v, err := mem.Deref(Pointer{Addr: 0x10, Elem: "isize"})
	if err != nil {
		t.Fatal(err)
	}
	if v != Value(Int(1)) {
		t.Fatalf("unexpected value %#v", v)
	}
	_, err = mem.Deref(Pointer{Addr: 0x20, Elem: "isize"})
	var derr *DereferenceError
	if !errors.As(err, &derr) || derr.Addr != 0x20 || !errors.Is(err, ErrUnmapped) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestLayers(t *testing.T) {
	top := MapMemory{0x10: Int(1)}
	bottom := MapMemory{0x10: Int(2), 0x20: Int(3)}
	mem := Layers{nil, top, bottom}

	tests := []struct {
		addr uint64
		want string
	}{
		{0x10, "1"},
		{0x20, "3"},
	}
	for _, tc := range tests {
		v, err := mem.Deref(Pointer{Addr: tc.addr, Elem: "isize"})
		if err != nil {
			t.Fatalf("%#x: %v", tc.addr, err)
		}
		if got := v.(Scalar).Repr; got != tc.want {
			t.Errorf("%#x: expected %s, got %s", tc.addr, tc.want, got)
		}
	}

	if _, err := mem.Deref(Pointer{Addr: 0x30}); !errors.Is(err, ErrUnmapped) {
		t.Fatalf("expected ErrUnmapped, got %v", err)
	}
	if _, err := (Layers{brokenMemory{}, bottom}).Deref(Pointer{Addr: 0x20}); !errors.Is(err, errBroken) {
		t.Fatalf("expected the first layer's error, got %v", err)
	}
	if _, err := (Layers{}).Deref(Pointer{Addr: 0x20}); !errors.Is(err, ErrUnmapped) {
		t.Fatalf("expected ErrUnmapped for no layers, got %v", err)
	}
}
