package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"yashubustudio/vlookup/matcher"
)

func newColumnsCommand() *cobra.Command {
	var sheet string
	var noHeader bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "columns FILE",
		Short:       "List the columns of a spreadsheet with a sample value",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cols, err := matcher.ReadColumns(path, sheet, noHeader)
			if err != nil {
				return err
			}
			sheets, err := matcher.SheetNames(path)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Sheets  []string             `json:"sheets,omitempty"`
					Columns []matcher.ColumnInfo `json:"columns"`
				}{Sheets: sheets, Columns: cols})
			}

			out := cmd.OutOrStdout()
			if len(sheets) > 0 {
				fmt.Fprintf(out, "Sheets: %v\n", sheets)
			}
			rows := make([][]string, 0, len(cols))
			for _, col := range cols {
				rows = append(rows, []string{strconv.Itoa(col.Index), col.Name, col.Sample, col.Selector()})
			}
			fmt.Fprintln(out, renderTable(
				[]column{rightCol("#"), leftCol("Header"), itemCol("Sample"), leftCol("Select with")},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "Workbook sheet to inspect (default: first sheet)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Treat the first row as data")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print columns as JSON")
	return cmd
}
