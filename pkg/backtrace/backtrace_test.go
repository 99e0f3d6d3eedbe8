package backtrace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type fakeSymbolizer struct {
	results map[string]string
	missing bool
	calls   []string
}

func (s *fakeSymbolizer) Resolve(ctx context.Context, image, addr string) (string, error) {
	s.calls = append(s.calls, addr)
	if s.missing {
		return "", &ToolMissingError{Tool: "riscv64-unknown-elf-addr2line"}
	}
	if r, ok := s.results[addr]; ok {
		return r, nil
	}
	return "", &ResolutionError{Addr: addr, Err: errors.New("exit status 1")}
}

func run(t *testing.T, cfg Config, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := New(cfg).Run(context.Background(), strings.NewReader(input), &out)
	return out.String(), err
}

func TestLineWithoutAddress(t *testing.T) {
	sym := &fakeSymbolizer{}
	out, err := run(t, Config{Image: "os", Symbolizer: sym}, "[kernel] Hello, world!\n")
	if err != nil {
		t.Fatal(err)
	}
	if out != "[kernel] Hello, world!\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(sym.calls) != 0 {
		t.Fatalf("symbolizer called for a line without address: %v", sym.calls)
	}
}

func TestResolvedAddress(t *testing.T) {
	sym := &fakeSymbolizer{results: map[string]string{"0x80200000": "rust_main at src/main.rs:42"}}
	out, err := run(t, Config{Image: "os", Symbolizer: sym}, "frame: ra=0x80200000\n")
	if err != nil {
		t.Fatal(err)
	}
	want := "frame: ra=0x80200000\n    ↳ rust_main at src/main.rs:42\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestResolutionFailureContinues(t *testing.T) {
	sym := &fakeSymbolizer{results: map[string]string{"0x80201000": "panic at src/lang_items.rs:48"}}
	input := "  #00 fp=0x80210000 ra=0xdeadbeef\n  #01 fp=0x80210040 ra=0x80201000\n"
	out, err := run(t, Config{Image: "os", Symbolizer: sym}, input)
	if err != nil {
		t.Fatal(err)
	}
	want := "  #00 fp=0x80210000 ra=0xdeadbeef\n" +
		"    ↳ [resolution failed] 0xdeadbeef\n" +
		"  #01 fp=0x80210040 ra=0x80201000\n" +
		"    ↳ panic at src/lang_items.rs:48\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestToolMissingIsFatal(t *testing.T) {
	sym := &fakeSymbolizer{missing: true}
	input := "booting\nframe: ra=0x80200000\nframe: ra=0x80200010\nafter\n"
	out, err := run(t, Config{Image: "os", Symbolizer: sym}, input)
	var missing *ToolMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected a ToolMissingError, got %v", err)
	}
	if out != "booting\nframe: ra=0x80200000\n" {
		t.Fatalf("unexpected output after a missing tool: %q", out)
	}
	if len(sym.calls) != 1 {
		t.Fatalf("expected one symbolizer call, got %v", sym.calls)
	}
}

func TestColor(t *testing.T) {
	sym := &fakeSymbolizer{results: map[string]string{"0x1": "f at a.rs:1"}}
	out, err := run(t, Config{Image: "os", Color: true, Symbolizer: sym}, "ra=0x1")
	if err != nil {
		t.Fatal(err)
	}
	want := "ra=0x1\n\x1b[33m    ↳ f at a.rs:1\x1b[0m\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}

	out, err = run(t, Config{Image: "os", Color: true, ColorEscape: "\x1b[36m", Symbolizer: sym}, "ra=0x1\n")
	if err != nil {
		t.Fatal(err)
	}
	if want := "ra=0x1\n\x1b[36m    ↳ f at a.rs:1\x1b[0m\n"; out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestOnlyFirstAddressPerLine(t *testing.T) {
	sym := &fakeSymbolizer{results: map[string]string{"0x10": "a", "0x20": "b"}}
	out, err := run(t, Config{Image: "os", Symbolizer: sym}, "ra=0x10 ra=0x20\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if out != "ra=0x10 ra=0x20\r\n    ↳ a\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(sym.calls) != 1 || sym.calls[0] != "0x10" {
		t.Fatalf("unexpected symbolizer calls %v", sym.calls)
	}
}

// stepReader returns one line per Read and fails if the resolver reads
// after the reader has been stopped.
type stepReader struct {
	lines []string
	reads int
}

func (r *stepReader) Read(p []byte) (int, error) {
	if len(r.lines) == 0 {
		return 0, io.EOF
	}
	r.reads++
	n := copy(p, r.lines[0])
	r.lines = r.lines[1:]
	return n, nil
}

type notifyWriter struct {
	bytes.Buffer
	onWrite func(string)
}

func (w *notifyWriter) Write(p []byte) (int, error) {
	w.onWrite(string(p))
	return w.Buffer.Write(p)
}

func TestStreamingOutputFlushedPerLine(t *testing.T) {
	sym := &fakeSymbolizer{results: map[string]string{"0x1": "f"}}
	in := &stepReader{lines: []string{"first\n", "ra=0x1\n", "last\n"}}
	var writesAtRead []int
	out := &notifyWriter{}
	out.onWrite = func(string) {
		writesAtRead = append(writesAtRead, in.reads)
	}
	if err := New(Config{Image: "os", Symbolizer: sym}).Run(context.Background(), in, out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "first\nra=0x1\n    ↳ f\nlast\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
	// every line must be written before the next one is read
	want := []int{1, 2, 3}
	if len(writesAtRead) != len(want) {
		t.Fatalf("expected %d writes, got %v", len(want), writesAtRead)
	}
	for i := range want {
		if writesAtRead[i] != want[i] {
			t.Fatalf("write %d happened after %d reads, expected %d", i, writesAtRead[i], want[i])
		}
	}
}

func TestCancel(t *testing.T) {
	sym := &fakeSymbolizer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := New(Config{Image: "os", Symbolizer: sym}).Run(ctx, strings.NewReader("a\nb\n"), &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestLineTerminatorsKept(t *testing.T) {
	sym := &fakeSymbolizer{results: map[string]string{"0x1": "f"}}
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"crlf", "booting\r\nready\r\n", "booting\r\nready\r\n"},
		{"no final newline", "booting\nready", "booting\nready"},
		{"crlf annotated", "ra=0x1\r\nready", "ra=0x1\r\n    ↳ f\nready"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, Config{Image: "os", Symbolizer: sym}, tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if out != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, out)
			}
		})
	}
}

func TestCancelDuringResolution(t *testing.T) {
	tool := fakeAddr2Line(t, "sleep 1; echo 'rust_main at src/main.rs:42'\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	var out bytes.Buffer
	err := New(Config{Image: "os", Symbolizer: &Addr2Line{Tool: tool}}).Run(ctx, strings.NewReader("frame: ra=0x80200000\nafter\n"), &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// the line being resolved is finished, the next one is not read
	if want := "frame: ra=0x80200000\n    ↳ rust_main at src/main.rs:42\n"; out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}

func TestCancelWhileWaitingForInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- New(Config{Image: "os", Symbolizer: &fakeSymbolizer{}}).Run(ctx, pr, io.Discard)
	}()
	if _, err := pw.Write([]byte("first\n")); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run still blocked on its input after cancellation")
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		text  string
		addr  string
		frame int
		fp    string
	}{
		{"Hello", "", -1, ""},
		{"ra=0x", "", -1, ""},
		{"frame: ra=0x80200000", "0x80200000", -1, ""},
		{"  #02 fp=0x80216f40 ra=0x8020a3c2", "0x8020a3c2", 2, "0x80216f40"},
		{"xra=0xABCDEFzz", "0xABCDEF", -1, ""},
		{"ra=80200000", "", -1, ""},
	}
	for _, tc := range tests {
		l := ParseLine(tc.text)
		if l.Address != tc.addr || l.Frame != tc.frame || l.FP != tc.fp {
			t.Errorf("ParseLine(%q) = %+v, expected address %q frame %d fp %q", tc.text, l, tc.addr, tc.frame, tc.fp)
		}
		if l.HasAddress() != (tc.addr != "") {
			t.Errorf("ParseLine(%q).HasAddress() = %v", tc.text, l.HasAddress())
		}
	}
}
