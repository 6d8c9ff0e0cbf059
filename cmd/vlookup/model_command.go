package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"yashubustudio/vlookup/internal/modelstore"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Embedding model utilities",
	}
	modelCmd.AddCommand(newModelLocateCommand(ctx))
	return modelCmd
}

func newModelLocateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Show where the embedding model is loaded from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loc := modelstore.Default(cfg.Embedder.ModelName, cfg.Embedder.ModelDir).Locate()
			if asJSON {
				return writeJSON(cmd, loc)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model:  %s\n", cfg.Embedder.ModelName)
			fmt.Fprintf(out, "Dir:    %s\n", loc.Dir)
			fmt.Fprintf(out, "Source: %s\n", loc.Source)
			if loc.Found {
				fmt.Fprintf(out, "Status: found (%s, %s)\n", loc.ModelPath, loc.TokenizerPath)
			} else {
				fmt.Fprintf(out, "Status: missing; place %s and %s in the directory above\n", modelstore.ModelFile, modelstore.TokenizerFile)
			}
			rows := make([][]string, 0, len(loc.Searched))
			for i, dir := range loc.Searched {
				rows = append(rows, []string{fmt.Sprint(i + 1), dir})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]column{rightCol("#"), leftCol("Searched")}, rows))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the location as JSON")
	return cmd
}
