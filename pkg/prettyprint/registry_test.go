package prettyprint

import (
	"testing"

	"github.com/xux-core/kdbg/pkg/value"
)

type constPrinter string

func (p constPrinter) String() (string, error) {
	return string(p), nil
}

func constant(s string) Constructor {
	return func(value.Value) Printer {
		return constPrinter(s)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register(map[string]Constructor{"TaskControlBlock": constant("first")})
	r.Register(map[string]Constructor{"TaskControlBlock": constant("second")})

	cons, ok := r.Lookup("TaskControlBlock")
	if !ok {
		t.Fatal("TaskControlBlock not registered")
	}
	got, _ := cons(value.Struct{Type: "TaskControlBlock"}).String()
	if got != "first" {
		t.Fatalf("expected the first registration to win, got %q", got)
	}
	if names := r.Complete(""); len(names) != 1 {
		t.Fatalf("expected one registered name, got %v", names)
	}
}

func TestDisplay(t *testing.T) {
	mem := value.MapMemory{
		0x80400000: value.Struct{Type: "TaskControlBlock", Fields: []value.Field{
			{Name: "pid", Value: value.Uint(1)},
			{Name: "parent", Value: value.Pointer{Elem: "TaskControlBlock"}},
		}},
	}
	f := NewFormatter(mem)
	r := NewRegistry()
	r.RegisterDebugPrinter(f, DefaultTypes...)

	tests := []struct {
		name string
		v    value.Value
		want string
	}{
		{"registered struct", mem[0x80400000], "TaskControlBlock { pid=1, parent=null }"},
		{"pointer to registered type", value.Pointer{Addr: 0x80400000, Elem: "TaskControlBlock"}, "TaskControlBlock { pid=1, parent=null }"},
		{"null pointer", value.Pointer{Elem: "TaskControlBlock"}, "null"},
		{"registered union", value.Union{Type: "TaskUserResource"}, "TaskUserResource { ... }"},
		{"unregistered struct", value.Struct{Type: "MemorySet", Fields: []value.Field{{Name: "x", Value: value.Int(1)}}}, "MemorySet"},
		{"unregistered pointer", value.Pointer{Addr: 0x10, Elem: "PageTable"}, "(*PageTable)(0x10)"},
		{"unregistered array", value.Array{Elem: "u8", Len: 4}, "[4]u8"},
		{"scalar", value.Int(3), "3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Display(tc.v)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestComplete(t *testing.T) {
	r := NewRegistry()
	r.RegisterDebugPrinter(NewFormatter(nil), "TaskUserResource", "TaskControlBlock", "TrapContext", "MemorySet")
	got := r.Complete("Task")
	want := []string{"TaskControlBlock", "TaskUserResource"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if got := r.Complete("Page"); len(got) != 0 {
		t.Fatalf("expected no completions, got %v", got)
	}
}
