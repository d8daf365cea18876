package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dump-sleuth/internal/analyzer"
)

func newBatchCommand(a *app) *cobra.Command {
	var (
		ov   overrides
		opts analyzer.BatchOptions
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Analyze every matching dump under a directory",
		Long: `Batch analyzes every file under dir whose name matches --pattern and
publishes one report per file. A file that cannot be analyzed is listed as
failed; the remaining files are still processed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov.apply(cmd.Flags(), a.cfg)
			svc, err := a.newService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			start := time.Now()
			items, err := svc.AnalyzeDir(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintf(out, "no files matching %q under %s\n", opts.Pattern, args[0])
				return nil
			}

			failed := 0
			t := newTable("FILE", "STATUS", "FORMAT", "ARTIFACTS", "TIME", "REPORT")
			for _, it := range items {
				name, _ := filepath.Rel(args[0], it.Path)
				if it.Err != nil {
					failed++
					t.add(name, status(false), "", "", it.Duration.Round(time.Millisecond).String(), truncate(it.Err.Error(), 60))
					continue
				}
				report := ""
				switch {
				case it.PublishErr != nil:
					failed++
					report = failStyle.Render(truncate(it.PublishErr.Error(), 60))
				case it.Published != nil:
					report = it.Published.ReportPath
				}
				meta := it.Result.Metadata()
				t.add(name, status(it.PublishErr == nil), string(meta.Dump.Format),
					fmt.Sprint(len(it.Result.Artifacts())), it.Duration.Round(time.Millisecond).String(), report)
			}
			t.render(out)

			fmt.Fprintln(out)
			fmt.Fprintf(out, "%d files, %d ok, %d failed in %s\n",
				len(items), len(items)-failed, failed, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	ov.register(cmd.Flags())
	cmd.Flags().StringVarP(&opts.Pattern, "pattern", "p", "*", "Glob matched against file names")
	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 1, "Files analyzed in parallel")
	return cmd
}
