package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"yashubustudio/vlookup/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded match runs",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	return historyCmd
}

func (c *commandContext) withHistory(cmd *cobra.Command, fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cmd.Context(), cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(cmd, func(store *history.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						run.StartedAt.Local().Format("2006-01-02 15:04:05"),
						baseName(run.FileA) + " / " + baseName(run.FileB),
						strconv.FormatFloat(run.Threshold, 'f', 2, 64),
						strconv.Itoa(run.Stats.Exact),
						strconv.Itoa(run.Stats.Fuzzy),
						strconv.Itoa(run.Stats.Unmatched),
						strconv.Itoa(run.Stats.UnusedB),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{
						leftCol("ID"), leftCol("Started"), itemCol("Files"), rightCol("Threshold"),
						rightCol("Exact"), rightCol("Fuzzy"), rightCol("Unmatched"), rightCol("Unused B"),
					},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 shows all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a recorded run by ID or unique ID prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(cmd, func(store *history.Store) error {
				entry, err := store.Get(cmd.Context(), args[0])
				switch {
				case errors.Is(err, history.ErrNotFound):
					return fmt.Errorf("no run matches %q", args[0])
				case errors.Is(err, history.ErrAmbiguousID):
					return fmt.Errorf("%q matches several runs; use a longer prefix", args[0])
				case err != nil:
					return err
				}
				if asJSON {
					return writeJSON(cmd, entry)
				}
				out := cmd.OutOrStdout()
				run := entry.Run
				fmt.Fprintf(out, "Run:       %s\n", run.ID)
				fmt.Fprintf(out, "Started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "File A:    %s\n", run.FileA)
				fmt.Fprintf(out, "File B:    %s\n", run.FileB)
				fmt.Fprintf(out, "Threshold: %.2f\n", run.Threshold)
				fmt.Fprintf(out, "Backend:   %s\n", run.Backend)
				if run.ModelID != "" {
					fmt.Fprintf(out, "Model:     %s\n", run.ModelID)
				}
				fmt.Fprintf(out, "Duration:  %s\n", run.Duration.Round(time.Millisecond))
				if run.OutputPath != "" {
					fmt.Fprintf(out, "Output:    %s\n", run.OutputPath)
				}
				fmt.Fprintln(out, renderStats(run.Stats))
				if len(entry.Records) > 0 {
					fmt.Fprintln(out, renderRecords(entry.Records, 0))
				}
				for _, b := range entry.UnusedB {
					fmt.Fprintf(out, "Unused in B: %s\n", b)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
