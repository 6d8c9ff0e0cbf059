package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yashubustudio/vlookup/internal/history"
	"yashubustudio/vlookup/matcher"
)

type matchOptions struct {
	fileA     string
	fileB     string
	columnA   string
	columnB   string
	sheet     string
	noHeader  bool
	threshold float64
	backend   string
	output    string
	format    string
	noHistory bool
	preview   int
	json      bool
}

// matchSummary is the --json form of a finished run.
type matchSummary struct {
	RunID      string                `json:"runId,omitempty"`
	OutputPath string                `json:"outputPath"`
	Threshold  float64               `json:"threshold"`
	ModelID    string                `json:"modelId,omitempty"`
	Stats      matcher.Stats         `json:"stats"`
	Records    []matcher.MatchRecord `json:"records"`
	UnmatchedB []string              `json:"unmatchedB"`
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match the rows of file A against file B",
		Long: `Match every item of file A against file B.

Items whose text is equal after trimming and case folding are paired first.
Leftover items on both sides are then paired by embedding similarity, best
score first, when the score reaches the threshold. Each B item is used once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			effective, err := applyMatchFlags(cmd, *cfg, opts)
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			return runMatch(cmd, effective, opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.fileA, "file-a", "a", "", "File A: the rows to look up (.xlsx, .csv, .tsv, .txt)")
	flags.StringVarP(&opts.fileB, "file-b", "b", "", "File B: the rows to match against")
	flags.StringVar(&opts.columnA, "column-a", "", "Column of file A by header name or #index (default: first column)")
	flags.StringVar(&opts.columnB, "column-b", "", "Column of file B by header name or #index (default: first column)")
	flags.StringVar(&opts.sheet, "sheet", "", "Workbook sheet to read (default: first sheet)")
	flags.BoolVar(&opts.noHeader, "no-header", false, "Treat the first row as data")
	flags.Float64VarP(&opts.threshold, "threshold", "t", matcher.DefaultThreshold, "Minimum similarity for a fuzzy match, between 0 and 1")
	flags.StringVar(&opts.backend, "backend", "", "Embedding backend override (onnx, hashed)")
	flags.StringVarP(&opts.output, "output", "o", "", "Result file (default: <output.dir>/vlookup_result_<timestamp>.<format>)")
	flags.StringVar(&opts.format, "format", "", "Result format when --output is omitted (xlsx, csv)")
	flags.BoolVar(&opts.noHistory, "no-history", false, "Do not record the run in the history database")
	flags.IntVar(&opts.preview, "preview", 10, "Number of result rows to print (0 prints all, negative prints none)")
	flags.BoolVar(&opts.json, "json", false, "Print the run summary as JSON")
	_ = cmd.MarkFlagRequired("file-a")
	_ = cmd.MarkFlagRequired("file-b")

	return cmd
}

// applyMatchFlags layers command line flags over the loaded configuration.
func applyMatchFlags(cmd *cobra.Command, cfg matcher.Config, opts matchOptions) (matcher.Config, error) {
	if cmd.Flags().Changed("threshold") {
		cfg.Match.Threshold = opts.threshold
	}
	if v := strings.TrimSpace(opts.backend); v != "" {
		cfg.Embedder.Backend = v
	}
	if v := strings.TrimSpace(opts.columnA); v != "" {
		cfg.Input.ColumnA = v
	}
	if v := strings.TrimSpace(opts.columnB); v != "" {
		cfg.Input.ColumnB = v
	}
	if v := strings.TrimSpace(opts.sheet); v != "" {
		cfg.Input.Sheet = v
	}
	if v := strings.TrimSpace(opts.format); v != "" {
		cfg.Output.Format = strings.ToLower(v)
	}
	if opts.noHistory {
		cfg.History.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runMatch(cmd *cobra.Command, cfg matcher.Config, opts matchOptions, logger *slog.Logger) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	a, err := matcher.LoadColumn(opts.fileA, matcher.ColumnOptions{
		Column:   cfg.Input.ColumnA,
		Sheet:    cfg.Input.Sheet,
		NoHeader: opts.noHeader,
		NFKC:     cfg.Input.NFKC,
	})
	if err != nil {
		return fmt.Errorf("read file A: %w", err)
	}
	b, err := matcher.LoadColumn(opts.fileB, matcher.ColumnOptions{
		Column:   cfg.Input.ColumnB,
		Sheet:    cfg.Input.Sheet,
		NoHeader: opts.noHeader,
		NFKC:     cfg.Input.NFKC,
	})
	if err != nil {
		return fmt.Errorf("read file B: %w", err)
	}
	logger.Info("inputs loaded", "a", len(a), "b", len(b), "threshold", cfg.Match.Threshold, "backend", cfg.Embedder.Backend)

	shared := newSharedEmbedder(cfg.Embedder, logger)
	shared.Retain()
	defer func() {
		if err := shared.Release(); err != nil {
			logger.Warn("release embedder", "error", err)
		}
	}()
	svc, err := matcher.NewService(shared, logger)
	if err != nil {
		return err
	}

	res, err := runWithProgress(ctx, svc, a, b, cfg.Match.Threshold, newProgressReporter(cmd.ErrOrStderr(), logger))
	if err != nil {
		return err
	}
	modelID := shared.ModelID()

	outputPath, err := matcher.ResolveOutputPath(opts.output, cfg.Output.Dir, cfg.Output.Format, started)
	if err != nil {
		return err
	}
	if err := matcher.WriteResult(outputPath, res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	logger.Info("result written", "path", outputPath)

	summary := matchSummary{
		OutputPath: outputPath,
		Threshold:  cfg.Match.Threshold,
		ModelID:    modelID,
		Stats:      res.Stats,
		Records:    res.Records,
		UnmatchedB: res.UnmatchedB,
	}
	if cfg.History.Enabled {
		run, err := recordRun(ctx, cfg, history.Run{
			StartedAt:  started,
			FileA:      absPath(opts.fileA),
			FileB:      absPath(opts.fileB),
			Threshold:  cfg.Match.Threshold,
			Backend:    cfg.Embedder.Backend,
			ModelID:    modelID,
			Duration:   time.Since(started),
			OutputPath: outputPath,
		}, res)
		if err != nil {
			// The result file is already written; a history failure is not fatal.
			logger.Warn("record history", "error", err)
		} else {
			summary.RunID = run.ID
			logger.Debug("run recorded", "id", run.ID, "db", cfg.History.Path)
		}
	}

	if opts.json {
		return writeJSON(cmd, summary)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote results to %s\n", outputPath)
	if summary.RunID != "" {
		fmt.Fprintf(out, "Run ID: %s\n", summary.RunID)
	}
	fmt.Fprintln(out, renderStats(res.Stats))
	if opts.preview >= 0 && len(res.Records) > 0 {
		fmt.Fprintln(out, renderRecords(res.Records, opts.preview))
	}
	return nil
}

type runOutcome struct {
	res *matcher.Result
	err error
}

// runWithProgress runs the pipeline on a worker goroutine and relays its
// stage messages to reporter from the calling goroutine.
func runWithProgress(ctx context.Context, svc *matcher.Service, a, b []string, threshold float64, reporter *progressReporter) (*matcher.Result, error) {
	messages := make(chan string, 16)
	done := make(chan runOutcome, 1)
	go func() {
		defer close(messages)
		res, err := svc.Run(ctx, a, b, threshold, func(msg string) {
			select {
			case messages <- msg:
			default:
			}
		})
		done <- runOutcome{res: res, err: err}
	}()
	for msg := range messages {
		reporter.update(msg)
	}
	reporter.finish()
	outcome := <-done
	if outcome.err != nil {
		if errors.Is(outcome.err, matcher.ErrMatchFailed) {
			return nil, outcome.err
		}
		return nil, fmt.Errorf("match: %w", outcome.err)
	}
	return outcome.res, nil
}

func recordRun(ctx context.Context, cfg matcher.Config, run history.Run, res *matcher.Result) (history.Run, error) {
	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		return history.Run{}, err
	}
	defer store.Close()
	return store.Record(ctx, run, res)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
