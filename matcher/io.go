package matcher

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ColumnOptions selects the column LoadColumn reads.
type ColumnOptions struct {
	// Column is a header name (case insensitive) or a 1-based "#N" index.
	// Empty selects the first column.
	Column string
	// Sheet names the workbook sheet. Empty selects the first sheet.
	Sheet string
	// NoHeader treats the first row as data.
	NoHeader bool
	// NFKC applies Unicode compatibility normalization to every cell.
	NFKC bool
}

// ErrNoItems is returned when a column yields no non-empty cells.
var ErrNoItems = errors.New("no items found")

// LoadColumn reads one column of a spreadsheet or text file. Supported inputs
// are .xlsx/.xlsm workbooks, .csv and .tsv files, and plain text with one item
// per line (plain text has no header and no columns). Cells are trimmed and
// empty cells are dropped; order is preserved.
func LoadColumn(path string, opts ColumnOptions) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !isTabular(ext) {
		return readLines(path, opts.NFKC)
	}
	rows, err := readTable(path, opts.Sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoItems)
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	col, err := resolveColumn(header, opts.Column, !opts.NoHeader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	start := 1
	if opts.NoHeader {
		start = 0
	}
	items := make([]string, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		value := cleanCell(row[col])
		if opts.NFKC {
			value = NormalizeText(value)
		}
		if value == "" {
			continue
		}
		items = append(items, value)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoItems)
	}
	return items, nil
}

// SheetNames lists workbook sheets in order. Non-workbook files have none.
func SheetNames(path string) ([]string, error) {
	if !isWorkbook(strings.ToLower(filepath.Ext(path))) {
		return nil, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func isWorkbook(ext string) bool {
	return ext == ".xlsx" || ext == ".xlsm"
}

func isTabular(ext string) bool {
	return isWorkbook(ext) || ext == ".csv" || ext == ".tsv"
}

func readTable(path, sheet string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if isWorkbook(ext) {
		return readWorkbook(path, sheet)
	}
	comma := ','
	if ext == ".tsv" {
		comma = '\t'
	}
	return readDelimited(path, comma)
}

func readWorkbook(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", filepath.Base(path))
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found in %s", sheet, filepath.Base(path))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

func readDelimited(path string, comma rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

func readLines(path string, nfkc bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text file: %w", err)
	}
	defer f.Close()
	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		line := cleanCell(scanner.Text())
		if nfkc {
			line = NormalizeText(line)
		}
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan text file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoItems)
	}
	return out, nil
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, "\ufeff")
	return strings.TrimSpace(v)
}

// resolveColumn maps a header name or "#N" token to a 0-based index. Names
// are only matched when the first row is a header.
func resolveColumn(header []string, explicit string, hasHeader bool) (int, error) {
	trimmed := strings.TrimSpace(explicit)
	if trimmed == "" {
		return 0, nil
	}
	if hasHeader {
		for i, col := range header {
			if strings.EqualFold(col, trimmed) {
				return i, nil
			}
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		return parseColumnIndex(trimmed)
	}
	return -1, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

// Result sheet layout.
var resultHeader = []string{"A item", "B match", "Similarity", "Status"}

const unusedBLabel = "Unused in B"

// WriteResult exports res to path. The format follows the extension: .xlsx
// (or .xlsm) writes a workbook, anything else writes CSV.
func WriteResult(path string, res *Result) error {
	if res == nil {
		return errors.New("nil result")
	}
	if isWorkbook(strings.ToLower(filepath.Ext(path))) {
		return writeResultWorkbook(path, res)
	}
	return writeResultCSV(path, res)
}

// FormatSimilarity renders a score with three decimals, or blank for zero.
func FormatSimilarity(score float64) string {
	if score == 0 {
		return ""
	}
	return strconv.FormatFloat(score, 'f', 3, 64)
}

func writeResultCSV(path string, res *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	defer f.Close()

	// Spreadsheet applications need the BOM to detect UTF-8.
	if _, err := f.WriteString("\ufeff"); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	writer := csv.NewWriter(f)
	if err := writer.Write(resultHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range res.Records {
		row := []string{rec.AText, rec.BText, FormatSimilarity(rec.Similarity), rec.Status.Label()}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if len(res.UnmatchedB) > 0 {
		if err := writer.Write(make([]string, len(resultHeader))); err != nil {
			return fmt.Errorf("write separator: %w", err)
		}
		for _, b := range res.UnmatchedB {
			if err := writer.Write([]string{"", b, "", unusedBLabel}); err != nil {
				return fmt.Errorf("write unused B row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush result: %w", err)
	}
	return f.Close()
}

func writeResultWorkbook(path string, res *Result) error {
	const sheet = "Result"
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(resultHeader))
	for i, h := range resultHeader {
		header[i] = h
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := 2
	for _, rec := range res.Records {
		var score any
		if rec.Similarity != 0 {
			score = math.Round(rec.Similarity*1000) / 1000
		}
		if err := setRow(f, sheet, row, []any{rec.AText, rec.BText, score, rec.Status.Label()}); err != nil {
			return err
		}
		row++
	}
	if len(res.UnmatchedB) > 0 {
		row++
		for _, b := range res.UnmatchedB {
			if err := setRow(f, sheet, row, []any{nil, b, nil, unusedBLabel}); err != nil {
				return err
			}
			row++
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "C", "D", 14); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// ResolveOutputPath returns the absolute result path. An empty path yields a
// timestamped file name inside dir with the extension of format. The parent
// directory is created.
func ResolveOutputPath(path, dir, format string, now time.Time) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "."
	}
	if format == "" {
		format = FormatXLSX
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("vlookup_result_%s.%s", now.Format("20060102_150405"), format)
	return filepath.Join(absDir, filename), nil
}
