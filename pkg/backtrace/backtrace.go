// Package backtrace annotates kernel output with symbolized return
// addresses.
//
// Every line read is copied to the output. Lines containing a return
// address token (ra=0x...) are followed by an indented line describing the
// function and source location of the address, as reported by a Symbolizer.
package backtrace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xux-core/kdbg/pkg/logflags"
)

const (
	// DefaultColorEscape starts a yellow annotation line.
	DefaultColorEscape = "\x1b[33m"

	resetEscape      = "\x1b[0m"
	annotationPrefix = "    ↳ "
	failurePrefix    = "[resolution failed] "
)

// Config configures a Resolver.
type Config struct {
	// Image is the path of the kernel binary the addresses belong to.
	Image string
	// Color wraps annotation lines in ColorEscape and a reset sequence.
	Color bool
	// ColorEscape defaults to DefaultColorEscape.
	ColorEscape string
	Symbolizer  Symbolizer
}

// Resolution is the outcome of resolving one address.
type Resolution struct {
	Addr   string
	Text   string
	Failed bool
}

func (r Resolution) String() string {
	if r.Failed {
		return failurePrefix + r.Addr
	}
	return r.Text
}

// Resolver annotates a stream of kernel output.
type Resolver struct {
	cfg Config
	log logflags.Logger
}

// New returns a Resolver for cfg.
func New(cfg Config) *Resolver {
	if cfg.ColorEscape == "" {
		cfg.ColorEscape = DefaultColorEscape
	}
	return &Resolver{cfg: cfg, log: logflags.ResolverLogger()}
}

// Run copies in to out one line at a time, adding an annotation after every
// line that carries a return address. Lines are copied with their original
// terminator; a final line without one gets a newline only when it is
// annotated. A symbolizer failure for a single address is reported inside
// the annotation and processing continues; a *ToolMissingError stops the
// run and is returned.
// Cancelling ctx stops the run at the next line boundary, including while
// Run is waiting for input.
func (r *Resolver) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if r.cfg.Symbolizer == nil {
		return errors.New("no symbolizer configured")
	}
	lines := newLineReader(in)
	defer lines.close()
	w := bufio.NewWriter(out)
	for {
		if err := ctx.Err(); err != nil {
			w.Flush()
			return err
		}
		line, err := lines.next(ctx)
		if err != nil {
			w.Flush()
			return err
		}
		if line.text != "" {
			err := r.annotate(w, line.text)
			if ferr := w.Flush(); err == nil {
				err = ferr
			}
			if err != nil {
				return err
			}
		}
		if line.err == io.EOF {
			return nil
		}
		if line.err != nil {
			return line.err
		}
	}
}

func (r *Resolver) annotate(w io.Writer, text string) error {
	io.WriteString(w, text)
	line := ParseLine(strings.TrimRight(text, "\r\n"))
	if !line.HasAddress() {
		return nil
	}
	if !strings.HasSuffix(text, "\n") {
		io.WriteString(w, "\n")
	}
	// The symbolizer always runs to completion, cancellation is only
	// observed between lines.
	res, err := r.Resolve(context.Background(), line.Address)
	if err != nil {
		return err
	}
	log := r.log
	if line.Frame >= 0 {
		log = log.WithFields(logflags.Fields{"frame": line.Frame, "fp": line.FP})
	}
	log.Debugf("%s: %s", line.Address, res)
	annotation := annotationPrefix + res.String()
	if r.cfg.Color {
		annotation = r.cfg.ColorEscape + annotation + resetEscape
	}
	fmt.Fprintln(w, annotation)
	return nil
}

// Resolve resolves a single address. The only error returned is a
// *ToolMissingError, other failures produce a failed Resolution.
func (r *Resolver) Resolve(ctx context.Context, addr string) (Resolution, error) {
	text, err := r.cfg.Symbolizer.Resolve(ctx, r.cfg.Image, addr)
	if err != nil {
		var missing *ToolMissingError
		if errors.As(err, &missing) {
			return Resolution{}, err
		}
		r.log.WithError(err).Debugf("resolution of %s failed", addr)
		return Resolution{Addr: addr, Failed: true}, nil
	}
	return Resolution{Addr: addr, Text: text}, nil
}
