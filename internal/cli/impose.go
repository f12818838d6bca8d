package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

// imposeOpts は impose コマンドのフラグです。
type imposeOpts struct {
	capacity    int
	orientation string
	output      string
	config      string
	workers     int
	password    string
}

func newImposeCmd(backend BackendFactory) *cobra.Command {
	var opts imposeOpts

	cmd := &cobra.Command{
		Use:   "impose [files...]",
		Short: "Impose PDF files onto A4 sheets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := flagValues{orientation: opts.orientation, password: opts.password}
			if cmd.Flags().Changed("capacity") {
				flags.capacity = &opts.capacity
			}
			if cmd.Flags().Changed("workers") {
				flags.workers = &opts.workers
			}
			return runImpose(cmd, args, opts, flags, backend)
		},
	}

	cmd.Flags().IntVarP(&opts.capacity, "capacity", "n", defaultCapacity, "number of source pages per sheet")
	cmd.Flags().StringVarP(&opts.orientation, "orientation", "O", "", "sheet orientation: portrait or landscape (default portrait)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default merged_YYYY_MM_DD_HH_MM_SS.pdf)")
	cmd.Flags().StringVar(&opts.config, "config", "", "config file (default ./nup.toml if present)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "parallel source loaders (0 = default)")
	cmd.Flags().StringVar(&opts.password, "password", "", "password for encrypted sources")
	return cmd
}

func runImpose(cmd *cobra.Command, paths []string, opts imposeOpts, flags flagValues, backend BackendFactory) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	file, unknown, err := loadFileConfig(opts.config)
	if err != nil {
		return err
	}
	for _, key := range unknown {
		logger.Warn("unknown config key", "key", key)
	}
	s, err := resolveSettings(flags, file)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = defaultOutputName(time.Now())
		if s.outputDir != "" {
			output = filepath.Join(s.outputDir, output)
		}
	}

	engineOpts := []impose.Option{impose.WithLogger(engineLogger(logger))}
	if s.workers > 0 {
		engineOpts = append(engineOpts, impose.WithWorkers(s.workers))
	}
	engine := impose.NewEngine(backend(s.password), engineOpts...)

	logger.Debug("imposing", "inputs", len(paths), "capacity", s.capacity, "orientation", s.orientation)
	prog := newProgress(logger)
	result, err := engine.Run(ctx, impose.RunRequest{
		Paths:       paths,
		Capacity:    s.capacity,
		Orientation: s.orientation,
		Progress: func(stage string, done, total int) {
			logger.Debug("progress", "stage", stage, "done", done, "total", total)
		},
	})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(output, result.PDF, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	for _, w := range result.Warnings {
		logger.Warn("skipped", "kind", w.Kind, "file", w.Path, "err", w.Err)
	}
	prog.done("wrote "+output,
		"sheets", len(result.Sheets),
		"sources", result.SourceCount,
		"grid", fmt.Sprintf("%dx%d", result.Grid.Columns, result.Grid.Rows),
	)
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// defaultOutputName は merged_YYYY_MM_DD_HH_MM_SS.pdf 形式の出力名を返します。
func defaultOutputName(now time.Time) string {
	return now.Format("merged_2006_01_02_15_04_05") + ".pdf"
}
