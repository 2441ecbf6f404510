// Package contexts contains context helpers for long running commands
package contexts

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// WithSignals returns a context that is canceled when the process receives one of the given signals.
// When ctx is nil, a default Background context is used.
// When signals is empty, the context is canceled by os.Interrupt and SIGTERM.
//
// A migration run that is canceled rolls back the unit it is applying. Call the
// returned cancel function to stop listening for the signals.
func WithSignals(ctx context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(ctx)
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			logrus.WithField("signal", sig.String()).Warn("received signal, terminating the migration run")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
