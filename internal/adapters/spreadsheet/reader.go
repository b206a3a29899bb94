package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("spreadsheet: unsupported file format")
	ErrNoWorksheet       = errors.New("spreadsheet: no worksheet found")
	ErrSheetNotFound     = errors.New("spreadsheet: worksheet not found")
	ErrEmptyWorksheet    = errors.New("spreadsheet: worksheet is empty")
	ErrReadOnlyFormat    = errors.New("spreadsheet: format cannot be written back")
)

// Format はファイル形式です。
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

const maxXLSRows = 100000

// FormatFromPath は拡張子からファイル形式を判定します。
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadRows はファイルの先頭行をヘッダーとして生の行に変換します。sheet が空の場合は先頭のシートを読みます。
// セルの値は書式を適用しない生の文字列で、日付はシリアル値のまま渡します。
func ReadRows(r io.Reader, format Format, sheet string) ([]roster.RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read: %w", err)
	}

	var grid [][]string
	switch format {
	case FormatXLSX:
		grid, err = readXLSX(data, sheet)
	case FormatXLS:
		grid, err = readXLS(data, sheet)
	case FormatCSV:
		grid, err = readCSV(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return rowsFromGrid(grid)
}

func readXLSX(data []byte, sheet string) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open xlsx: %w", err)
	}
	defer func() { _ = file.Close() }()

	if sheet == "" {
		sheet = file.GetSheetName(0)
		if sheet == "" {
			return nil, ErrNoWorksheet
		}
	} else if !containsSheet(file.GetSheetList(), sheet) {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	rows, err := file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readXLS(data []byte, sheet string) ([][]string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open xls: %w", err)
	}
	if workbook.NumSheets() == 0 {
		return nil, ErrNoWorksheet
	}
	if sheet == "" && workbook.NumSheets() == 1 {
		return workbook.ReadAllCells(maxXLSRows), nil
	}

	for i := 0; i < workbook.NumSheets(); i++ {
		ws := workbook.GetSheet(i)
		if ws == nil || (sheet != "" && ws.Name != sheet) {
			continue
		}
		grid := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				grid = append(grid, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol()+1)
			for c := 0; c <= row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			grid = append(grid, cells)
		}
		return grid, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	grid, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read csv: %w", err)
	}
	return grid, nil
}

// rowsFromGrid は最初の空でない行をヘッダーとみなします。空行とヘッダーが空の列は読み飛ばします。
func rowsFromGrid(grid [][]string) ([]roster.RawRow, error) {
	start := -1
	for i, row := range grid {
		if !blank(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrEmptyWorksheet
	}

	headers := uniqueHeaders(grid[start])
	rows := make([]roster.RawRow, 0, len(grid)-start-1)
	for _, cells := range grid[start+1:] {
		if blank(cells) {
			continue
		}
		row := make(roster.RawRow, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(cells) {
				value = cells[i]
			}
			row[header] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// uniqueHeaders は同名のヘッダーに連番を付けて区別します。
func uniqueHeaders(raw []string) []string {
	seen := make(map[string]int, len(raw))
	out := make([]string, len(raw))
	for i, h := range raw {
		if strings.TrimSpace(h) == "" {
			continue
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = h
	}
	return out
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func containsSheet(sheets []string, name string) bool {
	for _, s := range sheets {
		if s == name {
			return true
		}
	}
	return false
}
