package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"downlevel/internal/config"
	"downlevel/internal/diff"
	"downlevel/internal/logging"
	"downlevel/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var (
	outDir      string
	watchMode   bool
	untyped     bool
	known       []string
	workers     int
	auditDir    string
	debounceDur time.Duration
	showDiff    bool
	noColor     bool
)

var errTransformFailed = errors.New("transform reported problems")

// transformCmd lowers decorators in the given files and directories
var transformCmd = &cobra.Command{
	Use:   "transform [paths...]",
	Short: "Lower annotation decorators in files and directories",
	Long: `Loads every input into one program so imports resolve across files, then
rewrites the non-declaration files in parallel.

With --out the results mirror the input tree under that directory. Without
it, a single input file is printed to stdout and larger runs only report.
Exits non-zero when any file failed or reported a diagnostic.

Examples:
  downlevel transform src/app.ts
  downlevel transform src --out build/lowered
  downlevel transform src --out build/lowered --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTransform,
}

func registerTransformFlags() {
	transformCmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory")
	transformCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Keep running and rebuild on changes")
	transformCmd.Flags().BoolVar(&untyped, "untyped", false, "Emit metadata without TypeScript type annotations")
	transformCmd.Flags().StringSliceVar(&known, "known", nil, "Extra module#name annotations (repeatable)")
	transformCmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (default from config)")
	transformCmd.Flags().StringVar(&auditDir, "audit-dir", "", "Write a JSON audit trail of rewrite decisions here")
	transformCmd.Flags().BoolVar(&showDiff, "diff", false, "Print a unified diff of every changed file instead of its output")
	transformCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored diff output")
	transformCmd.Flags().DurationVar(&debounceDur, "debounce", 300*time.Millisecond, "Quiet period before a watch rebuild")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if untyped {
		cfg.Transform.TypedMetadata = false
	}
	cfg.Transform.KnownAnnotations = append(cfg.Transform.KnownAnnotations, known...)
	if workers > 0 {
		cfg.Input.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

func runTransform(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Logging.Options()); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if verbose {
		logging.Attach(logger)
	}
	defer logging.CloseAll()
	if err := logging.InitAudit(auditDir); err != nil {
		return err
	}
	defer logging.CloseAudit()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runner := pipeline.NewRunner(cfg, outDir)
	sum, runErr := runner.Run(ctx, args)
	if sum == nil {
		return runErr
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if showDiff {
		if err := printDiffs(stdout, runner, sum); err != nil {
			return err
		}
	} else if outDir == "" && !watchMode && len(args) == 1 && len(sum.Results) == 1 && sum.Results[0].File == filepath.Clean(args[0]) {
		if _, err := stdout.Write(sum.Results[0].Output); err != nil {
			return err
		}
	}
	failed := report(stderr, sum, runErr)

	if watchMode {
		return watch(ctx, runner, args, stderr)
	}
	if failed {
		return errTransformFailed
	}
	return nil
}

func printDiffs(w io.Writer, runner *pipeline.Runner, sum *pipeline.Summary) error {
	styles := diff.ColorStyles()
	if noColor {
		styles = diff.PlainStyles()
	}
	engine := diff.NewEngine(3)
	for _, res := range sum.Results {
		if !res.Changed {
			continue
		}
		before, ok := runner.Source(res.File)
		if !ok {
			continue
		}
		d := engine.Compute(res.File, string(before), string(res.Output))
		if _, err := io.WriteString(w, d.Unified(styles)); err != nil {
			return err
		}
	}
	return nil
}

// report prints problems and the summary line, and returns whether there
// were any problems.
func report(w io.Writer, sum *pipeline.Summary, err error) bool {
	for _, e := range multierr.Errors(err) {
		fmt.Fprintln(w, e)
	}
	if sum != nil {
		fmt.Fprintln(w, sum)
	}
	return err != nil
}

func watch(ctx context.Context, runner *pipeline.Runner, roots []string, w io.Writer) error {
	watcher := pipeline.NewWatcher(runner, roots, func(sum *pipeline.Summary, err error) {
		report(w, sum, err)
	})
	watcher.SetDebounce(debounceDur)
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Fprintln(w, "watching for changes; press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("Received shutdown signal")
	return nil
}

// initConfigCmd writes the default configuration
var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default configuration to --config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}
