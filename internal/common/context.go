package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// WithInterrupt returns a context cancelled on SIGINT or SIGTERM. Call the
// returned func to release the signal handler.
func WithInterrupt(parent context.Context) (context.Context, func()) {
	ctx, stop := signal.NotifyContext(parent, interruptSignals...)
	return ctx, stop
}

// NewInterruptChannel delivers SIGINT and SIGTERM for callers that need
// to know which signal arrived.
func NewInterruptChannel() (<-chan os.Signal, func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, interruptSignals...)

	return sigChan, func() { signal.Stop(sigChan) }
}
