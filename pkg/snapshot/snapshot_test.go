package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xux-core/kdbg/pkg/prettyprint"
	"github.com/xux-core/kdbg/pkg/value"
)

const taskSnapshot = `
memory:
  - addr: 0x80400000
    value:
      struct: TaskControlBlock
      fields:
        - {name: pid, value: {scalar: 1, type: usize}}
        - {name: parent, value: {ptr: 0, elem: TaskControlBlock}}
        - {name: inner, value: {ptr: 0x80400100, elem: TaskUserResource}}
        - {name: kstack, value: {array: usize, len: 3, elems: [{scalar: 0x10}, {scalar: 0x20}, {scalar: 0x30}]}}
  - addr: 0x80400100
    value: {union: TaskUserResource}
vars:
  current: {ptr: 0x80400000, elem: TaskControlBlock}
  ticks: {scalar: 42}
  dangling: {ptr: 0x1234, elem: TaskControlBlock}
`

func TestParseAndFormat(t *testing.T) {
	s, err := Parse([]byte(taskSnapshot))
	if err != nil {
		t.Fatal(err)
	}
	names := s.VarNames()
	if strings.Join(names, ",") != "current,dangling,ticks" {
		t.Fatalf("unexpected variable names %v", names)
	}

	current, ok := s.Var("current")
	if !ok {
		t.Fatal("variable current not found")
	}
	got, err := prettyprint.NewFormatter(s).Format(current)
	if err != nil {
		t.Fatal(err)
	}
	want := "TaskControlBlock { pid=1, parent=null, inner=TaskUserResource { ... }, kstack=[0x10, 0x20, 0x30] }"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	dangling, _ := s.Var("dangling")
	_, err = prettyprint.NewFormatter(s).Format(dangling)
	var derr *value.DereferenceError
	if !errors.As(err, &derr) || derr.Addr != 0x1234 {
		t.Fatalf("expected a DereferenceError for 0x1234, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"no tag", "vars: {x: {type: usize}}", "exactly one"},
		{"two tags", "vars: {x: {scalar: 1, union: U}}", "exactly one"},
		{"array length mismatch", "vars: {x: {array: u8, len: 2, elems: [{scalar: 1}]}}", "declares 2"},
		{"null address", "memory: [{addr: 0, value: {scalar: 1}}]", "null pointer"},
		{"duplicate address", "memory: [{addr: 0x10, value: {scalar: 1}}, {addr: 0x10, value: {scalar: 2}}]", "defined twice"},
		{"missing field name", "vars: {x: {struct: S, fields: [{value: {scalar: 1}}]}}", "missing field name"},
		{"missing value", "vars: {x: {struct: S, fields: [{name: a}]}}", "missing value"},
		{"unknown key", "vars: {x: {scalar: 1, typo: 2}}", "typo"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected error containing %q, got %v", tc.msg, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yml")
	if err := os.WriteFile(path, []byte(taskSnapshot), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := s.Var("ticks")
	if !ok {
		t.Fatal("variable ticks not found")
	}
	if sc, isScalar := v.(value.Scalar); !isScalar || sc.Repr != "42" {
		t.Fatalf("unexpected value %#v", v)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing snapshot")
	}
}
