package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/dump-sleuth/pkg/compression"
	apperrors "github.com/dump-sleuth/pkg/errors"
)

func newReportCommand(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "report <file>",
		Short: "Inspect a written report file",
		Long: `Report reads a report written by analyze or batch. Gzip and zstd reports
are decompressed transparently. With --path only the value at that gjson
path is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return apperrors.Access("cannot read report", err)
			}
			doc, err := compression.AutoDecompress(raw)
			if err != nil {
				return err
			}
			if !gjson.ValidBytes(doc) {
				return fmt.Errorf("%s is not a JSON report", args[0])
			}
			a.logger.Debug("report %s: %d bytes, %s", args[0], len(doc), compression.DetectType(raw))

			out := cmd.OutOrStdout()
			if path != "" {
				return printPath(out, doc, path, args[0])
			}

			meta := gjson.GetBytes(doc, "metadata")
			fmt.Fprintln(out, titleStyle.Render(meta.Get("file_name").String()))
			fmt.Fprintf(out, "  run:      %s\n", meta.Get("run_id").String())
			fmt.Fprintf(out, "  analyzed: %s\n", meta.Get("timestamp").String())
			fmt.Fprintf(out, "  format:   %s\n", meta.Get("format").String())
			fmt.Fprintf(out, "  size:     %s\n", units.HumanSize(meta.Get("file_size").Float()))
			fmt.Fprintln(out)

			results := gjson.GetBytes(doc, "results").Map()
			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)

			t := newTable("MODULE", "STATUS", "ARTIFACTS", "TIME")
			for _, name := range names {
				r := results[name]
				t.add(name, status(r.Get("success").Bool()),
					strconv.FormatInt(r.Get("artifacts.#").Int(), 10),
					fmt.Sprintf("%.0fms", r.Get("duration_ms").Float()))
			}
			t.render(out)

			if n := gjson.GetBytes(doc, "errors.#").Int(); n > 0 {
				fmt.Fprintf(out, "\n%s %d\n", failStyle.Render("errors:"), n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Print the value at a gjson path")
	return cmd
}
