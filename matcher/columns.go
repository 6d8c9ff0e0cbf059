package matcher

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ColumnInfo describes one column of a tabular input for column selection.
type ColumnInfo struct {
	Index  int    `json:"index"` // 1-based, as accepted by "#N"
	Name   string `json:"name"`
	Sample string `json:"sample,omitempty"`
}

// Selector returns the token that selects this column in ColumnOptions.
func (c ColumnInfo) Selector() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("#%d", c.Index)
}

// ReadColumns lists the columns of a workbook sheet or delimited file with the
// first non-empty value below the header. Plain text files report a single
// unnamed column.
func ReadColumns(path, sheet string, noHeader bool) ([]ColumnInfo, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !isTabular(ext) {
		lines, err := readLines(path, false)
		if err != nil {
			return nil, err
		}
		return []ColumnInfo{{Index: 1, Sample: truncateSample(lines[0], 20)}}, nil
	}
	rows, err := readTable(path, sheet)
	if err != nil {
		return nil, err
	}
	maxCols := 0
	for _, row := range rows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}
	start := 1
	if noHeader {
		start = 0
	}
	cols := make([]ColumnInfo, 0, maxCols)
	for col := 0; col < maxCols; col++ {
		info := ColumnInfo{Index: col + 1}
		if !noHeader && len(rows) > 0 && col < len(rows[0]) {
			info.Name = cleanCell(rows[0][col])
		}
		info.Sample = columnSample(rows, col, start)
		cols = append(cols, info)
	}
	return cols, nil
}

func columnSample(rows [][]string, col, start int) string {
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if col >= len(row) {
			continue
		}
		if val := cleanCell(row[col]); val != "" {
			return truncateSample(val, 20)
		}
	}
	return ""
}

func truncateSample(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}
