package main

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/opal-lang/weave/core/errors"
)

// watch renders once, then again whenever a template, data or schema file
// changes, until ctx is cancelled. Render failures are reported and
// watching continues; unchanged templates come from the parse cache.
func watch(ctx context.Context, cmd *cobra.Command, opts *options, files []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrapf(err, "create watcher")
	}
	defer watcher.Close()

	paths := watchedPaths(opts, files)
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			return errors.Wrapf(err, "watch %s", path)
		}
	}

	useColor := ShouldUseColor(opts.noColor)
	p := newPalette(useColor)
	rerender := func() {
		if err := renderOnce(cmd, opts, files); err != nil {
			FormatError(cmd.ErrOrStderr(), err, useColor)
			return
		}
		if opts.output != "" {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", p.ok.Sprint("wrote"), opts.output)
		}
	}
	rerender()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if opts.debug {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", p.detail.Sprintf("event %s: %s", event.Name, event.Op))
			}
			// Editors that save by rename drop the watch; add it back.
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				_ = watcher.Add(event.Name)
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				rerender()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return errors.Wrapf(err, "watch")
		}
	}
}

// watchedPaths lists the inputs of a render; standard input is not watched.
func watchedPaths(opts *options, files []string) []string {
	paths := append([]string(nil), files...)
	if opts.data != "" && opts.data != stdinPath {
		paths = append(paths, opts.data)
	}
	if opts.schema != "" {
		paths = append(paths, opts.schema)
	}
	return paths
}
