package commands

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/typegraph/config"
	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/logger"
	"github.com/teranos/typegraph/sym"
)

// WatchCmd reloads and re-validates a document whenever it changes on disk.
var WatchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: sym.Watch + " Reload and re-validate a graph document on change",
	Long: sym.Watch + ` watch — Reload and re-validate a graph document on change

Every time the file is written, the document is reloaded through the full
two-phase load (so invalid relations surface in the log) and the change in
entity counts is printed. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond

	m, err := loadModel(path)
	if err != nil {
		return err
	}
	prev := collectStats(m)
	pterm.Printf("%s Watching %s (%d nodes, %d relations, %d isa edges)\n",
		sym.Watch, path, prev.nodes, prev.relations, prev.isaEdges)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()
	// Watch the directory, not the file: editors replace files on save,
	// which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watch %s", path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			pterm.Printf("%s Stopped watching %s\n", sym.Watch, path)
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// coalesce event bursts into one reload
			pending = time.After(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watcher error", "symbol", sym.Watch, "error", err)

		case <-pending:
			pending = nil
			next, err := loadModel(path)
			if err != nil {
				pterm.Error.Printf("reload of %s failed: %v\n", path, err)
				continue
			}
			cur := collectStats(next)
			pterm.Printf("%s Reloaded %s: nodes %+d, relations %+d, isa edges %+d\n",
				sym.Watch, path,
				cur.nodes-prev.nodes, cur.relations-prev.relations, cur.isaEdges-prev.isaEdges)
			prev = cur
		}
	}
}
