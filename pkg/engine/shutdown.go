package engine

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// Runner is anything that runs until its streams drain and can be stopped.
type Runner interface {
	Run(ctx context.Context) error
	Stop()
}

// RunWithGracefulShutdown starts a pipeline and handles SIGTERM/SIGINT for
// graceful shutdown. It blocks until the pipeline completes or the shutdown
// timeout expires.
func RunWithGracefulShutdown(ctx context.Context, pipeline Runner, timeout time.Duration) error {
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listen for OS signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// Run the pipeline in a separate goroutine.
	errCh := make(chan error, 1)
	go func() {
		errCh <- pipeline.Run(ctx)
	}()

	// Wait for signal or pipeline completion.
	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
		pipeline.Stop()

		// Wait for graceful drain with timeout.
		select {
		case err := <-errCh:
			return err
		case <-time.After(timeout):
			slog.Warn("shutdown timeout expired, forcing exit", "timeout", timeout)
			cancel()
			return <-errCh
		}

	case err := <-errCh:
		return err
	}
}
