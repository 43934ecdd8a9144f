package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels a run on SIGINT/SIGTERM and tells the user
// what was kept.
type InterruptHandler struct {
	writer      io.Writer
	hint        string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler writing to writer. hint, when set,
// is printed after the interrupt notice.
func NewInterruptHandler(writer io.Writer, hint string) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{writer: writer, hint: hint}
}

// HandleInterrupts returns a context canceled on the first signal. Call
// the returned stop function once the guarded work is done.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			h.Interrupt()
			cancel()
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
}

// Interrupt marks the handler interrupted and prints the notice once.
func (h *InterruptHandler) Interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return
	}
	h.interrupted = true

	msg := "\n\n" + FormatWarning("Run interrupted!")
	if h.hint != "" {
		msg += "\n" + FormatInfo(h.hint)
	}
	if _, err := fmt.Fprintln(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted returns true if the process was interrupted.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
