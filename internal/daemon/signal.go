package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupShutdownHandler returns a context that is canceled when SIGTERM or
// SIGINT is received.
func SetupShutdownHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
		cancel()
	}()

	return ctx, cancel
}
