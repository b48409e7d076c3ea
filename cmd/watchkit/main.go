// Command watchkit is a debugging and example CLI for the watchkit
// library: it prints the semantic add/change/unlink event stream for the
// watched paths.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logger zerolog.Logger

	flagPolling  bool
	flagInterval int
	flagIgnore   []string
	flagDedupMs  int
	flagFollow   bool
	flagDepth    int
	flagVerbose  bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchkit",
		Short: "watchkit is a cross-platform recursive filesystem-change watcher",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
			level := zerolog.InfoLevel
			if flagVerbose {
				level = zerolog.DebugLevel
			}
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
				Level(level).With().Timestamp().Logger()
		},
	}

	cmd.PersistentFlags().BoolVar(&flagPolling, "poll", false, "force the polling backend")
	cmd.PersistentFlags().IntVar(&flagInterval, "interval", 100, "poll interval in milliseconds")
	cmd.PersistentFlags().StringSliceVar(&flagIgnore, "ignore", nil, "glob pattern to ignore (repeatable)")
	cmd.PersistentFlags().BoolVar(&flagFollow, "follow-symlinks", false, "follow symlinked directories")
	cmd.PersistentFlags().IntVar(&flagDepth, "depth", 0, "maximum recursion depth (0 = unbounded)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	_ = viper.BindPFlag("poll", cmd.PersistentFlags().Lookup("poll"))
	_ = viper.BindPFlag("interval", cmd.PersistentFlags().Lookup("interval"))
	_ = viper.BindPFlag("ignore", cmd.PersistentFlags().Lookup("ignore"))
	_ = viper.BindPFlag("follow_symlinks", cmd.PersistentFlags().Lookup("follow-symlinks"))
	_ = viper.BindPFlag("depth", cmd.PersistentFlags().Lookup("depth"))

	watchCmd := newWatchCmd()
	fileCmd := newFileCmd()
	dedupCmd := newDedupCmd()
	dedupCmd.Flags().IntVar(&flagDedupMs, "window", 500, "dedup window in milliseconds")

	cmd.AddCommand(watchCmd, fileCmd, dedupCmd)
	return cmd
}

// initConfig loads environment overrides: the flags bound to viper above
// (poll, interval, ignore, follow-symlinks, depth) can also be set via
// WATCHKIT_<KEY>, e.g. WATCHKIT_POLL=1 or WATCHKIT_FOLLOW_SYMLINKS=1.
// --verbose is not bound, and only the watch subcommand reads these values.
func initConfig() {
	viper.SetEnvPrefix("watchkit")
	viper.AutomaticEnv()
}

func printTime(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}
