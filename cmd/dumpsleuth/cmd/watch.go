package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dump-sleuth/internal/watcher"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		ov      overrides
		pattern string
		settle  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Analyze dumps as they appear in a directory",
		Long: `Watch monitors dir for new or rewritten files matching --pattern. Once a
file has not changed for --settle it is analyzed and its report published,
one file at a time, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov.apply(cmd.Flags(), a.cfg)
			svc, err := a.newService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			handle := func(ctx context.Context, path string) {
				result, pub, err := svc.AnalyzeFile(ctx, path)
				if result == nil {
					a.logger.Error("analysis of %s failed: %v", filepath.Base(path), err)
					fmt.Fprintf(out, "%s  %s  %v\n", status(false), filepath.Base(path), err)
					return
				}
				summary := fmt.Sprintf("%s  %d artifacts, %d errors", result.Metadata().RunID,
					len(result.Artifacts()), len(result.Errors()))
				if err != nil {
					a.logger.Error("publishing report of %s failed: %v", filepath.Base(path), err)
					fmt.Fprintf(out, "%s  %s  %s\n", status(false), filepath.Base(path), summary)
					return
				}
				fmt.Fprintf(out, "%s  %s  %s  %s\n", status(true), filepath.Base(path), summary, pub.ReportPath)
			}

			w, err := watcher.New(args[0], handle, watcher.Options{
				Pattern: pattern,
				Settle:  settle,
				Logger:  a.logger,
			})
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
	ov.register(cmd.Flags())
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "*", "Glob matched against file names")
	cmd.Flags().DurationVar(&settle, "settle", watcher.DefaultSettle, "Quiet period before a file is analyzed")
	return cmd
}
