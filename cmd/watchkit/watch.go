package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/watchkit/watchkit"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Watch the paths for changes and print the semantic events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args)
		},
	}
}

// runWatch wires only the flags the demo exposes; the library's remaining
// options (cwd, atomic, await-write-finish, always-stat) are for programmatic
// callers.
func runWatch(paths []string) error {
	opts := []watchkit.Option{
		watchkit.WithLogger(logger),
		watchkit.WithFollowSymlinks(viper.GetBool("follow_symlinks")),
		watchkit.WithDepth(viper.GetInt("depth")),
	}
	if viper.GetBool("poll") {
		opts = append(opts, watchkit.WithPolling(true))
	}
	if ms := viper.GetInt("interval"); ms > 0 {
		opts = append(opts, watchkit.WithInterval(time.Duration(ms)*time.Millisecond))
	}
	if ign := viper.GetStringSlice("ignore"); len(ign) > 0 {
		opts = append(opts, watchkit.WithIgnored(ign...))
	}

	w, err := watchkit.New(paths, opts...)
	if err != nil {
		return err
	}
	defer w.Close()

	printTime("ready; press ^C to exit")
	for ev := range w.All {
		printTime("%s %s", ev.Op, ev.Path)
	}
	return nil
}
