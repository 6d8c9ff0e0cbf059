package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"yashubustudio/vlookup/matcher"
)

// itemWidth caps the columns that hold A or B item text.
const itemWidth = 40

// column describes one table column. A zero width leaves the column unbounded.
type column struct {
	title string
	right bool
	width int
}

func leftCol(title string) column { return column{title: title} }
func rightCol(title string) column { return column{title: title, right: true} }
func itemCol(title string) column { return column{title: title, width: itemWidth} }

// renderTable draws rows under cols. Headers keep their case; item columns
// wrap on word boundaries.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, col := range cols {
		header[i] = col.title
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if col.right {
			cfg.Align = text.AlignRight
		}
		if col.width > 0 {
			cfg.WidthMax = col.width
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

func renderStats(stats matcher.Stats) string {
	rows := [][]string{
		{"A items", strconv.Itoa(stats.A)},
		{"B items", strconv.Itoa(stats.B)},
		{"Exact matches", strconv.Itoa(stats.Exact)},
		{"Fuzzy matches", strconv.Itoa(stats.Fuzzy)},
		{"Unmatched", strconv.Itoa(stats.Unmatched)},
		{"Unused in B", strconv.Itoa(stats.UnusedB)},
	}
	return renderTable([]column{leftCol("Metric"), rightCol("Count")}, rows)
}

// renderRecords lists at most limit records. A limit of zero or less renders
// every record.
func renderRecords(records []matcher.MatchRecord, limit int) string {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	rows := make([][]string, 0, limit)
	for _, rec := range records[:limit] {
		rows = append(rows, []string{
			strconv.Itoa(rec.AIndex + 1),
			rec.AText,
			rec.BText,
			matcher.FormatSimilarity(rec.Similarity),
			rec.Status.Label(),
		})
	}
	return renderTable(
		[]column{rightCol("#"), itemCol("A item"), itemCol("B match"), rightCol("Similarity"), leftCol("Status")},
		rows,
	)
}
