package watcher

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Handler reacts to one debounced batch.
type Handler func(ctx context.Context, batch []Event) error

// Run starts w and passes each batch to h until ctx ends. A handler error
// is logged and the loop keeps going. Run returns nil on cancellation.
func Run(ctx context.Context, w *FileWatcher, h Handler) error {
	logger := w.opts.Logger
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case batch, ok := <-w.Events():
				if !ok {
					return nil
				}
				if err := h(ctx, batch); err != nil {
					logger.Warn("watch_handler_failed",
						slog.Int("events", len(batch)),
						slog.String("error", err.Error()))
				}
			case err := <-w.Errors():
				logger.Warn("watch_error", slog.String("error", err.Error()))
			}
		}
	})

	return g.Wait()
}
