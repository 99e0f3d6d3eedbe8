package backtrace

import (
	"bufio"
	"context"
	"io"
)

type lineResult struct {
	text string
	err  error
}

// lineReader reads one line of its input per request on its own goroutine,
// so that a read blocked on a terminal or a pipe does not keep Run from
// returning once its context is cancelled. Nothing is read ahead of a
// request.
type lineReader struct {
	br   *bufio.Reader
	req  chan struct{}
	res  chan lineResult
	done chan struct{}
}

func newLineReader(in io.Reader) *lineReader {
	lr := &lineReader{
		br:   bufio.NewReader(in),
		req:  make(chan struct{}),
		res:  make(chan lineResult),
		done: make(chan struct{}),
	}
	go lr.loop()
	return lr
}

func (lr *lineReader) loop() {
	for {
		select {
		case <-lr.req:
		case <-lr.done:
			return
		}
		text, err := lr.br.ReadString('\n')
		select {
		case lr.res <- lineResult{text, err}:
		case <-lr.done:
			return
		}
	}
}

// next returns the next line, or the error of ctx if it is cancelled first.
func (lr *lineReader) next(ctx context.Context) (lineResult, error) {
	select {
	case lr.req <- struct{}{}:
	case <-ctx.Done():
		return lineResult{}, ctx.Err()
	}
	select {
	case res := <-lr.res:
		return res, nil
	case <-ctx.Done():
		return lineResult{}, ctx.Err()
	}
}

// close stops the reading goroutine. A read already in progress is
// abandoned and its result discarded.
func (lr *lineReader) close() {
	close(lr.done)
}
