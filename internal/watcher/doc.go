// Package watcher reports changes to a fixed set of files, such as the
// artifact manifest and the movie catalog, so a running engine can reload.
//
// fsnotify watches the parent directories; when it cannot be initialised
// (network mounts, some container volumes) the watcher polls instead.
// Bursts of events are debounced into batches.
//
//	w, err := watcher.New([]string{manifestPath}, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	err = watcher.Run(ctx, w, func(ctx context.Context, batch []watcher.Event) error {
//	    return engine.Reload(ctx)
//	})
package watcher
