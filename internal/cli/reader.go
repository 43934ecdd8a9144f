package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// LineReader reads answers from a terminal without blocking past
// cancellation. A read abandoned by cancellation keeps running in the
// background and its line is lost.
type LineReader struct {
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line without surrounding whitespace.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ErrInputCancelled
	}

	type result struct {
		err  error
		line string
	}
	ch := make(chan result, 1)
	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		line, err := r.reader.ReadString('\n')
		ch <- result{err: err, line: line}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-ch:
		if res.err != nil && (res.line == "" || !errors.Is(res.err, io.EOF)) {
			return "", res.err
		}
		return strings.TrimSpace(res.line), nil
	}
}
