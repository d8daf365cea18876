package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dump-sleuth/internal/service"
	"github.com/dump-sleuth/pkg/config"
	"github.com/dump-sleuth/pkg/model"
	"github.com/dump-sleuth/pkg/writer"
)

// overrides are the run flags shared by analyze, batch and watch. Only
// flags that were set on the command line replace config values.
type overrides struct {
	modules    []string
	outputDir  string
	compress   string
	upload     bool
	persist    bool
	recovery   bool
	sequential bool
	workers    int
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&o.modules, "modules", "m", nil, "Modules to run (default: modules.enabled)")
	fs.StringVarP(&o.outputDir, "output", "o", "", "Report directory (default: output.dir)")
	fs.StringVar(&o.compress, "compress", "", "Report compression: none, gzip or zstd")
	fs.BoolVar(&o.upload, "upload", false, "Upload reports to the configured storage")
	fs.BoolVar(&o.persist, "persist", false, "Persist runs to the configured database")
	fs.BoolVar(&o.recovery, "recovery", false, "Keep going when the dump cannot be read")
	fs.BoolVar(&o.sequential, "sequential", false, "Run modules one at a time")
	fs.IntVar(&o.workers, "module-workers", 0, "Concurrent modules per run (default: analysis.max_workers)")
}

func (o *overrides) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("modules") {
		cfg.Modules.Enabled = o.modules
	}
	if fs.Changed("output") {
		cfg.Output.Dir = o.outputDir
	}
	if fs.Changed("compress") {
		cfg.Output.Compress = o.compress
	}
	if fs.Changed("upload") {
		cfg.Output.Upload = o.upload
	}
	if fs.Changed("persist") {
		cfg.Output.Persist = o.persist
	}
	if fs.Changed("recovery") {
		cfg.Analysis.RecoveryMode = o.recovery
	}
	if fs.Changed("sequential") {
		cfg.Analysis.Parallel = !o.sequential
	}
	if fs.Changed("module-workers") {
		cfg.Analysis.MaxWorkers = o.workers
	}
}

func newAnalyzeCommand(a *app) *cobra.Command {
	var (
		ov       overrides
		jsonOut  bool
		noReport bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <dump>",
		Short: "Analyze a single dump file",
		Long: `Analyze runs the enabled extraction modules over one dump file, writes
the JSON report under the output directory and prints a per-module summary.
With --json the full report is printed to stdout instead of the summary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov.apply(cmd.Flags(), a.cfg)
			svc, err := a.newService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			if noReport {
				result, err := svc.Analyzer().Analyze(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printResult(out, result, nil, jsonOut)
			}

			result, pub, err := svc.AnalyzeFile(cmd.Context(), args[0])
			if result == nil {
				return err
			}
			if perr := printResult(out, result, pub, jsonOut); perr != nil {
				return perr
			}
			if err != nil {
				return fmt.Errorf("report publishing failed: %w", err)
			}
			return nil
		},
	}
	ov.register(cmd.Flags())
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full JSON report to stdout")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Do not write, upload or persist the report")
	return cmd
}

func printResult(w io.Writer, result *model.AggregateResult, pub *service.Published, jsonOut bool) error {
	if jsonOut {
		_, err := writer.NewPrettyJSONWriter[*model.AggregateResult]().Write(result, w)
		if err == nil {
			fmt.Fprintln(w)
		}
		return err
	}
	printSummary(w, result)
	if pub != nil {
		printPublished(w, pub)
	}
	return nil
}

func printSummary(w io.Writer, result *model.AggregateResult) {
	meta := result.Metadata()
	fmt.Fprintln(w, titleStyle.Render(meta.Dump.FileName))
	fmt.Fprintf(w, "  run:     %s\n", meta.RunID)
	fmt.Fprintf(w, "  format:  %s (%s, %d bytes)\n", meta.Dump.Format, meta.Dump.AccessMode, meta.Dump.FileSize)
	fmt.Fprintln(w)

	t := newTable("MODULE", "STATUS", "ARTIFACTS", "TIME", "DETAIL")
	for _, name := range result.ModuleNames() {
		r, _ := result.Result(name)
		detail := ""
		if !r.Success {
			detail = r.ErrorCategory + ": " + truncate(r.Error, 60)
		}
		t.add(name, status(r.Success), fmt.Sprint(len(r.Artifacts)),
			r.Duration.Round(time.Millisecond).String(), detail)
	}
	t.render(w)

	if errs := result.Errors(); len(errs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, failStyle.Render("errors:"))
		for _, e := range errs {
			fmt.Fprintf(w, "  [%s] %s: %s\n", e.Category, e.Module, e.Message)
		}
	}
	if warns := result.Warnings(); len(warns) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render("warnings:"))
		for _, e := range warns {
			fmt.Fprintf(w, "  %s: %s\n", e.Module, e.Message)
		}
	}
}

func printPublished(w io.Writer, pub *service.Published) {
	fmt.Fprintln(w)
	if pub.ReportPath != "" {
		fmt.Fprintf(w, "report:    %s\n", pub.ReportPath)
	}
	if pub.ReportURL != "" {
		fmt.Fprintf(w, "uploaded:  %s\n", pub.ReportURL)
	}
	if pub.Persisted {
		fmt.Fprintf(w, "persisted: %s\n", pub.RunID)
	}
}
