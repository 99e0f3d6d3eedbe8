package terminal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xux-core/kdbg/pkg/backtrace"
	"github.com/xux-core/kdbg/pkg/config"
	"github.com/xux-core/kdbg/pkg/snapshot"
)

const testSnapshot = `
memory:
  - addr: 0x80400000
    value:
      struct: TaskControlBlock
      fields:
        - {name: pid, value: {scalar: 1, type: usize}}
        - {name: parent, value: {ptr: 0, elem: TaskControlBlock}}
        - {name: next, value: {ptr: 0x80400000, elem: TaskControlBlock}}
vars:
  current: {ptr: 0x80400000, elem: TaskControlBlock}
  ticks: {scalar: 42}
  memory_set: {struct: MemorySet, fields: [{name: areas, value: {scalar: 3}}]}
`

func newTestTerm(t *testing.T, conf *config.Config) (*Term, *bytes.Buffer) {
	t.Helper()
	s, err := snapshot.Parse([]byte(testSnapshot))
	if err != nil {
		t.Fatal(err)
	}
	term := New(Session{Snapshot: s}, conf)
	var buf bytes.Buffer
	term.SetStdout(&buf)
	return term, &buf
}

func TestPrintVar(t *testing.T) {
	term, buf := newTestTerm(t, nil)
	if err := term.cmds.Call("print current ticks", term); err != nil {
		t.Fatal(err)
	}
	want := "current = TaskControlBlock { pid=1, parent=null, next=<cycle> }\nticks = 42\n"
	if buf.String() != want {
		t.Fatalf("expected %q, got %q", want, buf.String())
	}

	buf.Reset()
	if err := term.cmds.Call("p memory_set", term); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "memory_set = MemorySet\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}

	if err := term.cmds.Call("print nosuchvar", term); err == nil {
		t.Fatal("expected an error for an unknown variable")
	}
	if err := term.cmds.Call("print", term); err == nil {
		t.Fatal("expected an error without arguments")
	}
}

func TestNoSnapshot(t *testing.T) {
	term := New(Session{}, nil)
	term.SetStdout(new(bytes.Buffer))
	if err := term.cmds.Call("print current", term); err == nil {
		t.Fatal("expected an error without a snapshot")
	}
	if err := term.cmds.Call("vars", term); err == nil {
		t.Fatal("expected an error without a snapshot")
	}
}

func TestListVarsAndTypes(t *testing.T) {
	term, buf := newTestTerm(t, nil)
	if err := term.cmds.Call("vars", term); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "current\nmemory_set\nticks\n" {
		t.Fatalf("unexpected vars output %q", buf.String())
	}

	buf.Reset()
	if err := term.cmds.Call("types Task", term); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "TaskControlBlock\nTaskUserResource\n" {
		t.Fatalf("unexpected types output %q", buf.String())
	}
}

func TestCommandDefault(t *testing.T) {
	cmds := DebugCommands()
	err := cmds.Find("non-existent-command")(nil, "")
	if err != noCmdError {
		t.Fatalf("wrong error: %v", err)
	}
	if err := cmds.Find("")(nil, ""); err != nil {
		t.Fatalf("unexpected error for the empty command: %v", err)
	}
	if _, ok := cmds.Find("q")(nil, "").(ExitRequestError); !ok {
		t.Fatal("q should request an exit")
	}
}

func TestMergeAliases(t *testing.T) {
	cmds := DebugCommands()
	cmds.Merge(map[string][]string{"print": {"show"}})
	if got := cmds.aliasesWithPrefix("sh"); len(got) != 1 || got[0] != "show" {
		t.Fatalf("expected the show alias, got %v", got)
	}
	cmds.Merge(map[string][]string{"print": {"display"}})
	if got := cmds.aliasesWithPrefix("sh"); len(got) != 0 {
		t.Fatalf("merging again should drop previous aliases, got %v", got)
	}
}

func TestHelp(t *testing.T) {
	term, buf := newTestTerm(t, nil)
	if err := term.cmds.Call("help", term); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"print", "resolve", "types", "config"} {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("help output does not mention %s", name)
		}
	}
	buf.Reset()
	if err := term.cmds.Call("help r", term); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Resolves return addresses") {
		t.Fatalf("unexpected help text %q", buf.String())
	}
	if err := term.cmds.Call("help nosuchcommand", term); err != noCmdError {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestComplete(t *testing.T) {
	term, _ := newTestTerm(t, nil)
	tests := []struct {
		line string
		want []string
	}{
		{"pr", []string{"print"}},
		{"print cu", []string{"print current"}},
		{"p ticks c", []string{"p ticks current"}},
		{"types TaskC", []string{"types TaskControlBlock"}},
		{"resolve 0x", []string{}},
	}
	for _, tc := range tests {
		got := term.complete(tc.line)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Errorf("complete(%q): expected %v, got %v", tc.line, tc.want, got)
		}
	}
}

type fakeSymbolizer map[string]string

func (s fakeSymbolizer) Resolve(ctx context.Context, image, addr string) (string, error) {
	if r, ok := s[addr]; ok {
		return r, nil
	}
	return "", &backtrace.ResolutionError{Addr: addr, Err: errors.New("exit status 1")}
}

func TestResolve(t *testing.T) {
	term, buf := newTestTerm(t, nil)
	if err := term.cmds.Call("resolve 0x80200000", term); err == nil {
		t.Fatal("expected an error without a kernel image")
	}

	term.sess.Resolver = backtrace.New(backtrace.Config{
		Image:      "os",
		Symbolizer: fakeSymbolizer{"0x80200a3c": "rust_main at src/main.rs:42"},
	})
	if err := term.cmds.Call("resolve 0x80200a3c 0x1", term); err != nil {
		t.Fatal(err)
	}
	want := "0x80200a3c: rust_main at src/main.rs:42\n0x1: [resolution failed] 0x1\n"
	if buf.String() != want {
		t.Fatalf("expected %q, got %q", want, buf.String())
	}

	buf.Reset()
	if err := term.cmds.Call("r   #01 fp=0x80213f10 ra=0x80200a3c", term); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "0x80200a3c: rust_main at src/main.rs:42\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestConfigureSet(t *testing.T) {
	term, buf := newTestTerm(t, &config.Config{})

	if err := term.cmds.Call("config symbolizer llvm-addr2line", term); err != nil {
		t.Fatal(err)
	}
	if term.conf.Symbolizer != "llvm-addr2line" {
		t.Fatalf("symbolizer not set: %q", term.conf.Symbolizer)
	}
	if err := term.cmds.Call("config color purple", term); err == nil {
		t.Fatal("expected an error for an invalid color mode")
	}
	if err := term.cmds.Call("config cache-size -1", term); err == nil {
		t.Fatal("expected an error for a negative number")
	}
	if err := term.cmds.Call("config nosuchkey 1", term); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
	if err := term.cmds.Call("config", term); err == nil {
		t.Fatal("expected an error without arguments")
	}

	if err := term.cmds.Call("config max-depth 0", term); err != nil {
		t.Fatal(err)
	}
	if term.conf.MaxDepth == nil || *term.conf.MaxDepth != 0 {
		t.Fatal("max-depth not set")
	}

	if err := term.cmds.Call("config alias print show", term); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := term.cmds.Call("show ticks", term); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "ticks = 42\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}

	if err := term.cmds.Call("config pretty-print-types MemorySet", term); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := term.cmds.Call("print memory_set", term); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "memory_set = MemorySet { areas=3 }\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	if err := term.cmds.Call("config -list", term); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"symbolizer", "llvm-addr2line", "pretty-print-types", "alias print"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("config -list output does not contain %q:\n%s", s, buf.String())
		}
	}
}

func TestColorEnabled(t *testing.T) {
	if !ColorEnabled(config.ColorAlways, nil) {
		t.Error("always should enable color")
	}
	if ColorEnabled(config.ColorNever, nil) {
		t.Error("never should disable color")
	}
	if ColorEnabled(config.ColorAuto, nil) {
		t.Error("auto should disable color without a file")
	}
}

func TestSource(t *testing.T) {
	term, buf := newTestTerm(t, nil)
	script := `
store(0x90000000, struct("TaskControlBlock", [("pid", scalar(2)), ("next", ptr(0x80400000, "TaskControlBlock"))]))

def command_showtask(args):
    "Prints the task at an address."
    print(display(ptr(args, "TaskControlBlock")))

def main():
    print(var("ticks").repr)
`
	path := filepath.Join(t.TempDir(), "tasks.star")
	if err := os.WriteFile(path, []byte(script), 0600); err != nil {
		t.Fatal(err)
	}
	if err := term.cmds.Call("source "+path, term); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "42\n" {
		t.Fatalf("unexpected output of main %q", buf.String())
	}

	buf.Reset()
	if err := term.cmds.Call("showtask 0x90000000", term); err != nil {
		t.Fatal(err)
	}
	want := "TaskControlBlock { pid=2, next=TaskControlBlock { pid=1, parent=null, next=<cycle> } }\n"
	if buf.String() != want {
		t.Fatalf("expected %q, got %q", want, buf.String())
	}

	if err := term.cmds.Call("source", term); err == nil {
		t.Fatal("expected an error without a file name")
	}
}
