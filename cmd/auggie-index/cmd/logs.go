package cmd

import (
	"context"
	"errors"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/augmentcode/auggie-index/internal/logging"
)

// logsOptions holds the CLI flags for logs.
type logsOptions struct {
	lines   int
	follow  bool
	level   string
	pattern string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View server and indexer logs",
		Long: `Tail or follow the auggie-index log files.

Covers both the tool-server log and the log written by standalone
index runs, merged by timestamp.

Examples:
  auggie-index logs
  auggie-index logs -f --level warn
  auggie-index logs --grep 'reindex|webhook'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep watching for new entries")
	cmd.Flags().StringVar(&opts.level, "level", "", "Only show entries at or above this level")
	cmd.Flags().StringVar(&opts.pattern, "grep", "", "Only show entries matching this regex")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	var re *regexp.Regexp
	if opts.pattern != "" {
		var err error
		if re, err = regexp.Compile(opts.pattern); err != nil {
			return err
		}
	}
	show := func(e logging.Entry) {
		if opts.level != "" && !e.MatchesLevel(opts.level) {
			return
		}
		if re != nil && !re.MatchString(e.Raw) {
			return
		}
		cmd.Println(e.Format())
	}

	paths := []string{logging.ServerLogPath(), logging.IndexLogPath()}

	entries, err := logging.Tail(paths, opts.lines)
	if err != nil {
		return err
	}
	for _, e := range entries {
		show(e)
	}

	if !opts.follow {
		return nil
	}
	err = logging.Follow(cmd.Context(), paths, show)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
