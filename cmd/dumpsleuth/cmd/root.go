// Package cmd implements the dumpsleuth command line.
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dump-sleuth/internal/analyzer"
	"github.com/dump-sleuth/internal/service"
	"github.com/dump-sleuth/pkg/config"
	"github.com/dump-sleuth/pkg/telemetry"
	"github.com/dump-sleuth/pkg/utils"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	verbose    bool
	logFormat  string

	cfg      *config.Config
	logger   utils.Logger
	zap      *utils.ZapLogger
	shutdown telemetry.ShutdownFunc
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   BinName(),
		Short: "Forensic artifact extraction from memory dumps",
		Long: `dumpsleuth scans memory dump files (minidumps, full kernel dumps,
hibernation files, ELF and Mach-O cores) for forensic artifacts: strings,
network indicators, registry persistence, process traces, header structure
and leaked secrets. Reports are written as JSON and can be compressed,
uploaded to object storage and indexed in a database.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: ./dumpsleuth.yaml if present)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: console or json (overrides log.format)")

	binName := BinName()
	root.Example = `  # Analyze one dump and print a summary
  ` + binName + ` analyze ./memory.dmp

  # Only network and registry modules, full JSON report on stdout
  ` + binName + ` analyze ./memory.dmp --modules network,registry --json

  # Analyze every .dmp under a directory with 4 parallel runs
  ` + binName + ` batch ./cases --pattern '*.dmp' --recursive --workers 4

  # Analyze dumps as they are copied into a drop directory
  ` + binName + ` watch ./incoming --pattern '*.dmp'

  # Search persisted artifacts
  ` + binName + ` runs artifacts --category persistence --risk high`

	root.AddCommand(
		newAnalyzeCommand(a),
		newBatchCommand(a),
		newInfoCommand(a),
		newModulesCommand(a),
		newReportCommand(a),
		newRunsCommand(a),
		newWatchCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := ExecuteArgs(ctx, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// ExecuteArgs runs the command tree with explicit arguments, then flushes
// traces and logs.
func ExecuteArgs(ctx context.Context, args []string) error {
	a := &app{}
	defer a.teardown()

	root := newRootCommand(a)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	level := utils.ParseLogLevel(cfg.Log.Level)
	if a.verbose {
		level = utils.LevelDebug
	}
	a.zap = utils.NewZapLogger(level, cfg.Log.Format, cmd.ErrOrStderr())
	a.logger = a.zap
	a.cfg = cfg

	shutdown, err := telemetry.Init(cmd.Context(), Version)
	if err != nil {
		a.logger.Warn("tracing disabled: %v", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces: %v", err)
		}
		a.shutdown = nil
	}
	if a.zap != nil {
		a.zap.Sync()
	}
}

// newService builds and initializes a service over the loaded config.
func (a *app) newService(ctx context.Context) (*service.Service, error) {
	svc, err := service.New(a.cfg, a.logger, service.WithAnalyzerOptions(analyzer.WithVersion(Version)))
	if err != nil {
		return nil, err
	}
	if err := svc.Initialize(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
