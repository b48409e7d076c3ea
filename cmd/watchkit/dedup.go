package main

import (
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchkit/watchkit"
)

func newDedupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedup [paths...]",
		Short: "Watch the paths, suppressing duplicate events within a window",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDedup(args)
		},
	}
}

// runDedup demonstrates layering an additional, CLI-local dedup window on
// top of watchkit's own 50ms change throttle, for callers who want a coarser
// window than the library default without reconfiguring the watcher itself.
func runDedup(paths []string) error {
	w, err := watchkit.New(paths, watchkit.WithLogger(logger))
	if err != nil {
		return err
	}
	defer w.Close()

	window := time.Duration(flagDedupMs) * time.Millisecond

	var (
		mu   sync.Mutex
		last = make(map[string]time.Time)
	)

	printTime("ready; press ^C to exit")
	for ev := range w.All {
		key := ev.Op.String() + ":" + ev.Path

		mu.Lock()
		t, seen := last[key]
		fresh := !seen || time.Since(t) > window
		last[key] = time.Now()
		mu.Unlock()

		if !fresh {
			continue
		}
		printTime("%s %s", ev.Op, ev.Path)
	}
	return nil
}
