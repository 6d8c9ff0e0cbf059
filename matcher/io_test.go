package matcher_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"yashubustudio/vlookup/matcher"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeWorkbook(t *testing.T, name string, sheets map[string][][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	first := true
	for _, sheet := range []string{"Customers", "Products"} {
		rows, ok := sheets[sheet]
		if !ok {
			continue
		}
		if first {
			require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))
			first = false
		} else {
			_, err := f.NewSheet(sheet)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(sheet, cell, &values))
		}
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadColumnCSV(t *testing.T) {
	path := writeFile(t, "a.csv", "\ufeffID,Name,City\n1,  Alice ,Tokyo\n2,,Osaka\n3,Bob,\n")

	items, err := matcher.LoadColumn(path, matcher.ColumnOptions{Column: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, items)

	items, err = matcher.LoadColumn(path, matcher.ColumnOptions{Column: "#3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tokyo", "Osaka"}, items)

	// The BOM is stripped from the first header cell.
	items, err = matcher.LoadColumn(path, matcher.ColumnOptions{Column: "ID"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, items)

	items, err = matcher.LoadColumn(path, matcher.ColumnOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, items)
}

func TestLoadColumnNoHeader(t *testing.T) {
	path := writeFile(t, "b.tsv", "Name\tCity\nAlice\tTokyo\n")

	items, err := matcher.LoadColumn(path, matcher.ColumnOptions{Column: "#2", NoHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"City", "Tokyo"}, items)

	// Names never match when the first row is data.
	_, err = matcher.LoadColumn(path, matcher.ColumnOptions{Column: "City", NoHeader: true})
	require.Error(t, err)
}

func TestLoadColumnErrors(t *testing.T) {
	path := writeFile(t, "c.csv", "Name\n\n  \n")

	_, err := matcher.LoadColumn(path, matcher.ColumnOptions{})
	require.ErrorIs(t, err, matcher.ErrNoItems)

	_, err = matcher.LoadColumn(path, matcher.ColumnOptions{Column: "Missing"})
	require.ErrorContains(t, err, `column "Missing" not found`)

	_, err = matcher.LoadColumn(path, matcher.ColumnOptions{Column: "#0"})
	require.ErrorContains(t, err, "1-based")

	_, err = matcher.LoadColumn(filepath.Join(t.TempDir(), "missing.csv"), matcher.ColumnOptions{})
	require.Error(t, err)
}

func TestLoadColumnPlainTextWithNFKC(t *testing.T) {
	path := writeFile(t, "list.txt", "ＡＢＣ株式会社\n\n  ｶﾀｶﾅ  \n")

	items, err := matcher.LoadColumn(path, matcher.ColumnOptions{NFKC: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC株式会社", "カタカナ"}, items)

	raw, err := matcher.LoadColumn(path, matcher.ColumnOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ＡＢＣ株式会社", raw[0])
}

func TestLoadColumnWorkbookSheets(t *testing.T) {
	path := writeWorkbook(t, "book.xlsx", map[string][][]any{
		"Customers": {{"Customer"}, {"Acme"}, {"Globex"}},
		"Products":  {{"SKU", "Product"}, {"1", "Widget"}, {"2", "Gadget"}},
	})

	names, err := matcher.SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Customers", "Products"}, names)

	items, err := matcher.LoadColumn(path, matcher.ColumnOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Globex"}, items)

	items, err = matcher.LoadColumn(path, matcher.ColumnOptions{Sheet: "Products", Column: "product"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget", "Gadget"}, items)

	_, err = matcher.LoadColumn(path, matcher.ColumnOptions{Sheet: "Nope"})
	require.ErrorContains(t, err, `sheet "Nope" not found`)
}

func TestSheetNamesForTextInputs(t *testing.T) {
	names, err := matcher.SheetNames(writeFile(t, "a.csv", "x\n"))
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestReadColumns(t *testing.T) {
	path := writeFile(t, "cols.csv", "Code,Description\n,An extremely long description value\nA1,Short\n")

	cols, err := matcher.ReadColumns(path, "", false)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, matcher.ColumnInfo{Index: 1, Name: "Code", Sample: "A1"}, cols[0])
	assert.Equal(t, "Description", cols[1].Name)
	assert.Equal(t, "An extremely long de…", cols[1].Sample)
	assert.Equal(t, "Code", cols[0].Selector())

	cols, err = matcher.ReadColumns(path, "", true)
	require.NoError(t, err)
	assert.Empty(t, cols[0].Name)
	assert.Equal(t, "Code", cols[0].Sample)
	assert.Equal(t, "#1", cols[0].Selector())

	txt, err := matcher.ReadColumns(writeFile(t, "l.txt", "\nfirst\nsecond\n"), "", false)
	require.NoError(t, err)
	assert.Equal(t, []matcher.ColumnInfo{{Index: 1, Sample: "first"}}, txt)
}

func sampleResult() *matcher.Result {
	return &matcher.Result{
		Records: []matcher.MatchRecord{
			{AIndex: 0, BIndex: 0, AText: "Apple", BText: "APPLE", Similarity: 1, Status: matcher.StatusExact},
			{AIndex: 1, BIndex: 2, AText: "Banana", BText: "bananas", Similarity: 0.87654, Status: matcher.StatusFuzzy},
			{AIndex: 2, BIndex: -1, AText: "Cherry", Status: matcher.StatusUnmatched},
		},
		UnmatchedB: []string{"Durian"},
	}
}

func TestWriteResultCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, matcher.WriteResult(path, sampleResult()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "\ufeff"))

	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\ufeff")))
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"A item", "B match", "Similarity", "Status"},
		{"Apple", "APPLE", "1.000", "Exact match"},
		{"Banana", "bananas", "0.877", "Fuzzy match"},
		{"Cherry", "", "", "Unmatched"},
		{"", "", "", ""},
		{"", "Durian", "", "Unused in B"},
	}, rows)
}

func TestWriteResultCSVWithoutLeftovers(t *testing.T) {
	res := sampleResult()
	res.UnmatchedB = nil
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, matcher.WriteResult(path, res))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 4)
}

func TestWriteResultWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, matcher.WriteResult(path, sampleResult()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Result"}, f.GetSheetList())

	rows, err := f.GetRows("Result")
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"A item", "B match", "Similarity", "Status"}, rows[0])
	assert.Equal(t, []string{"Apple", "APPLE", "1", "Exact match"}, rows[1])
	assert.Equal(t, []string{"Banana", "bananas", "0.877", "Fuzzy match"}, rows[2])
	assert.Equal(t, []string{"Cherry", "", "", "Unmatched"}, rows[3])
	assert.Empty(t, rows[4])
	assert.Equal(t, []string{"", "Durian", "", "Unused in B"}, rows[5])
}

func TestWriteResultRejectsNil(t *testing.T) {
	require.Error(t, matcher.WriteResult(filepath.Join(t.TempDir(), "x.csv"), nil))
}

func TestFormatSimilarity(t *testing.T) {
	assert.Equal(t, "", matcher.FormatSimilarity(0))
	assert.Equal(t, "0.750", matcher.FormatSimilarity(0.75))
	assert.Equal(t, "1.000", matcher.FormatSimilarity(1))
}

func TestResolveOutputPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)

	got, err := matcher.ResolveOutputPath("", dir, matcher.FormatCSV, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vlookup_result_20260304_050607.csv"), got)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	explicit := filepath.Join(t.TempDir(), "a", "b", "result.xlsx")
	got, err = matcher.ResolveOutputPath(explicit, dir, matcher.FormatCSV, now)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
	_, err = os.Stat(filepath.Dir(explicit))
	require.NoError(t, err)
}
