package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/watchkit/watchkit"
)

func newFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file [files...]",
		Short: "Watch one or more individual files for changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args)
		},
	}
}

// runFile watches each file's parent directory rather than the file handle
// itself, since editors routinely replace a file in place
// (rename-over-original) rather than writing to the original inode.
// watchkit's registry already collapses that into a single add/change per
// path, so no extra dedup pass is needed here.
func runFile(files []string) error {
	targets := make(map[string]bool, len(files))
	var dirs []string
	for _, f := range files {
		st, err := os.Lstat(f)
		if err != nil {
			return fmt.Errorf("%s", err)
		}
		if st.IsDir() {
			return fmt.Errorf("%q is a directory, not a file", f)
		}
		targets[filepath.ToSlash(filepath.Clean(f))] = true
		dirs = append(dirs, filepath.Dir(f))
	}

	w, err := watchkit.New(dirs, watchkit.WithLogger(logger))
	if err != nil {
		return err
	}
	defer w.Close()

	printTime("ready; press ^C to exit")
	for ev := range w.All {
		if !targets[filepath.ToSlash(filepath.Clean(ev.Path))] {
			continue
		}
		printTime("%s %s", ev.Op, ev.Path)
	}
	return nil
}
