package backtrace

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/xux-core/kdbg/pkg/logflags"
)

// Symbolizer maps an address of a binary image to a function name and
// source location.
type Symbolizer interface {
	// Resolve returns the description of addr in the image at path.
	// A *ToolMissingError means no address can ever be resolved, any other
	// error is specific to addr.
	Resolve(ctx context.Context, image, addr string) (string, error)
}

// ToolMissingError is returned when the symbolizer executable can not be
// found.
type ToolMissingError struct {
	Tool string
	Err  error
}

func (err *ToolMissingError) Error() string {
	return fmt.Sprintf("symbolizer %q not found in PATH, check the toolchain installation", err.Tool)
}

func (err *ToolMissingError) Unwrap() error {
	return err.Err
}

// ResolutionError is returned when the symbolizer fails for one address.
type ResolutionError struct {
	Addr string
	Err  error
}

func (err *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s: %v", err.Addr, err.Err)
}

func (err *ResolutionError) Unwrap() error {
	return err.Err
}

// Addr2Line resolves addresses by running an addr2line compatible tool as
//
//	<Tool> -e <image> -f -p <addr>
//
// once per address.
type Addr2Line struct {
	Tool string

	path string
}

// Resolve implements Symbolizer.
func (a *Addr2Line) Resolve(ctx context.Context, image, addr string) (string, error) {
	if a.path == "" {
		path, err := exec.LookPath(a.Tool)
		if err != nil {
			return "", &ToolMissingError{Tool: a.Tool, Err: err}
		}
		a.path = path
	}
	cmd := exec.CommandContext(ctx, a.path, "-e", image, "-f", "-p", addr)
	logflags.SymbolizerLogger().Debugf("running %s", strings.Join(cmd.Args, " "))
	out, err := cmd.Output()
	if err != nil {
		return "", &ResolutionError{Addr: addr, Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// CachingSymbolizer remembers the successful resolutions of a Symbolizer.
// Failures are not cached.
type CachingSymbolizer struct {
	sym   Symbolizer
	cache *lru.Cache
}

// NewCachingSymbolizer wraps sym with a cache of size entries.
func NewCachingSymbolizer(sym Symbolizer, size int) (*CachingSymbolizer, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingSymbolizer{sym: sym, cache: cache}, nil
}

type cacheKey struct {
	image, addr string
}

// Resolve implements Symbolizer.
func (c *CachingSymbolizer) Resolve(ctx context.Context, image, addr string) (string, error) {
	key := cacheKey{image, addr}
	if v, ok := c.cache.Get(key); ok {
		logflags.SymbolizerLogger().Debugf("cache hit for %s", addr)
		return v.(string), nil
	}
	text, err := c.sym.Resolve(ctx, image, addr)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}
