package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/dump-sleuth/internal/repository"
	"github.com/dump-sleuth/pkg/model"
)

func newRunsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Query persisted analysis runs",
		Long:  `Runs reads the analysis runs stored in the configured database (see --persist).`,
	}
	cmd.AddCommand(
		newRunsListCommand(a),
		newRunsShowCommand(a),
		newRunsArtifactsCommand(a),
		newRunsDeleteCommand(a),
	)
	return cmd
}

// withRepos opens the configured database for the duration of fn.
func (a *app) withRepos(ctx context.Context, fn func(*repository.Repositories) error) error {
	db, err := repository.NewGormDB(&a.cfg.Database)
	if err != nil {
		return err
	}
	repos, err := repository.NewRepositories(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if err := repos.Close(); err != nil {
			a.logger.Warn("failed to close database: %v", err)
		}
	}()
	return fn(repos)
}

func newRunsListCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRepos(cmd.Context(), func(repos *repository.Repositories) error {
				runs, err := repos.Runs.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				t := newTable("RUN", "ANALYZED", "DUMP", "FORMAT", "SIZE", "MODULES", "ERRORS")
				for _, r := range runs {
					errs := strconv.Itoa(r.ErrorCount)
					if r.ErrorCount > 0 {
						errs = failStyle.Render(errs)
					}
					t.add(r.RunID, r.AnalyzedAt.UTC().Format(time.RFC3339), r.DumpName, r.Format,
						units.HumanSize(float64(r.DumpSize)), strconv.Itoa(r.ModuleCount), errs)
				}
				t.render(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", repository.DefaultListLimit, "Maximum runs to list")
	return cmd
}

func newRunsShowCommand(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run or part of its report",
		Long: `Show prints a stored run's module outcomes. With --path the stored JSON
report is queried instead, e.g. --path results.network.data.summary or
--path 'results.registry.artifacts.#.value'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepos(cmd.Context(), func(repos *repository.Repositories) error {
				run, err := repos.Runs.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				if path != "" {
					return printPath(out, run.Report, path, "run "+run.RunID)
				}

				outcomes, err := repos.Runs.GetModuleResults(cmd.Context(), run.RunID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, titleStyle.Render(run.DumpName))
				fmt.Fprintf(out, "  run:      %s\n", run.RunID)
				fmt.Fprintf(out, "  analyzed: %s\n", run.AnalyzedAt.UTC().Format(time.RFC3339))
				fmt.Fprintf(out, "  format:   %s\n", run.Format)
				if run.ReportURL != "" {
					fmt.Fprintf(out, "  report:   %s\n", run.ReportURL)
				}
				fmt.Fprintln(out)

				t := newTable("MODULE", "STATUS", "ARTIFACTS", "TIME", "DETAIL")
				for _, o := range outcomes {
					detail := ""
					if !o.Success {
						detail = o.ErrorCategory + ": " + truncate(o.ErrorMessage, 60)
					}
					t.add(o.Module, status(o.Success), strconv.Itoa(o.ArtifactCount),
						fmt.Sprintf("%.0fms", o.DurationMS), detail)
				}
				t.render(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Query the stored report with a gjson path")
	return cmd
}

// printPath prints the value at a gjson path of a report. Strings are
// printed bare, everything else as raw JSON.
func printPath(out io.Writer, report []byte, path, source string) error {
	res := gjson.GetBytes(report, path)
	if !res.Exists() {
		return fmt.Errorf("path %q not found in report of %s", path, source)
	}
	if res.Type == gjson.String {
		fmt.Fprintln(out, res.String())
	} else {
		fmt.Fprintln(out, res.Raw)
	}
	return nil
}

func newRunsArtifactsCommand(a *app) *cobra.Command {
	var (
		q    repository.ArtifactQuery
		risk string
	)
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Search stored artifacts across runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch model.RiskLevel(risk) {
			case model.RiskNone, model.RiskLow, model.RiskMedium, model.RiskHigh:
				q.Risk = model.RiskLevel(risk)
			default:
				return fmt.Errorf("invalid --risk %q (valid: low, medium, high)", risk)
			}
			return a.withRepos(cmd.Context(), func(repos *repository.Repositories) error {
				found, err := repos.Runs.FindArtifacts(cmd.Context(), q)
				if err != nil {
					return err
				}
				t := newTable("RUN", "MODULE", "CATEGORY", "OFFSET", "RISK", "VALUE").style(4, riskStyle)
				for _, art := range found {
					t.add(art.RunID, art.Module, art.Category, fmt.Sprintf("0x%x", art.Offset), art.Risk, truncate(art.Value, 80))
				}
				t.render(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.RunID, "run", "", "Only artifacts of this run")
	cmd.Flags().StringVar(&q.Category, "category", "", "Only this category, e.g. url or persistence")
	cmd.Flags().StringVar(&q.Contains, "contains", "", "Only values containing this text")
	cmd.Flags().StringVar(&risk, "risk", "", "Only this risk level: low, medium or high")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 100, "Maximum artifacts to show")
	return cmd
}

func newRunsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run with its outcomes and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepos(cmd.Context(), func(repos *repository.Repositories) error {
				if err := repos.Runs.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", args[0])
				return nil
			})
		},
	}
}
