package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"log/slog"
)

// Worker is a long-running background task that exits when its context is cancelled.
type Worker func(ctx context.Context) error

// Run starts the HTTP server and performs a graceful shutdown when the process receives an interrupt.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	return RunWithWorkers(ctx, srv, logger)
}

// RunWithWorkers starts the HTTP server alongside the supplied background
// workers. A shutdown signal, context cancellation, or a worker returning an
// error stops everything: workers are cancelled first, then the server is
// drained within a bounded grace period.
func RunWithWorkers(ctx context.Context, srv *http.Server, logger *slog.Logger, workers ...Worker) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	errCh := make(chan error, len(workers)+1)
	var wg sync.WaitGroup

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	for _, worker := range workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			if err := w(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(worker)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	cancelWorkers()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
