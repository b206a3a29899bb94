package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet は書き出し時のシート名です。
const DefaultSheet = "Employees"

// writeBackHeaders は元の台帳で使われているヘッダーです。読み込み時の別名表で正規フィールドに戻ります。
var writeBackHeaders = map[roster.Field]string{
	roster.FieldJoinDate:             "Join Date\n(yyyy/mm/dd)",
	roster.FieldExitDate:             "Exit Date\nyyyy/mm/dd",
	roster.FieldPositionAfterJoining: "Position\n(After Joining)",
	roster.FieldEmploymentType:       "Type",
}

type heldRow struct {
	fields map[roster.Field]string
	extra  map[string]string
}

// tableGrid は正規化済みテーブルをヘッダー行付きの表に変換します。算出フィールドは含みません。
// 正規化で除外された行はレコードの後ろに元の値のまま続けます。
func tableGrid(t *roster.Table) [][]string {
	var (
		columns roster.ColumnSet
		extras  []string
		held    []heldRow
	)
	if t != nil {
		columns = t.Columns.Clone()
		extras = append(extras, t.ExtraColumns...)
		for _, raw := range t.Held {
			fields, extra := roster.SplitRawRow(raw)
			held = append(held, heldRow{fields: fields, extra: extra})
		}
	}
	if columns == nil {
		columns = roster.ColumnSet{}
	}
	seenExtra := make(map[string]bool, len(extras))
	for _, e := range extras {
		seenExtra[e] = true
	}
	for _, h := range held {
		for f := range h.fields {
			columns[f] = true
		}
		for _, e := range sortedKeys(h.extra) {
			if !seenExtra[e] {
				seenExtra[e] = true
				extras = append(extras, e)
			}
		}
	}

	fields := make([]roster.Field, 0, len(roster.CanonicalFields))
	for _, f := range roster.CanonicalFields {
		if f == roster.FieldRecordID || columns.Has(f) {
			fields = append(fields, f)
		}
	}

	header := make([]string, 0, len(fields)+len(extras))
	for _, f := range fields {
		if h, ok := writeBackHeaders[f]; ok {
			header = append(header, h)
			continue
		}
		header = append(header, string(f))
	}
	header = append(header, extras...)

	grid := [][]string{header}
	for _, r := range tableRecords(t) {
		row := make([]string, 0, len(header))
		for _, f := range fields {
			row = append(row, r.Value(f))
		}
		for _, e := range extras {
			row = append(row, r.Extra[e])
		}
		grid = append(grid, row)
	}
	for _, h := range held {
		row := make([]string, 0, len(header))
		for _, f := range fields {
			row = append(row, h.fields[f])
		}
		for _, e := range extras {
			row = append(row, h.extra[e])
		}
		grid = append(grid, row)
	}
	return grid
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func tableRecords(t *roster.Table) []roster.Record {
	if t == nil {
		return nil
	}
	return t.Records
}

// WriteTableXLSX は正規化済みテーブルを新しいブックとして書き出します。
func WriteTableXLSX(w io.Writer, t *roster.Table, sheet string) error {
	return writeXLSX(w, sheet, tableGrid(t))
}

// WriteTableCSV は正規化済みテーブルを CSV として書き出します。
func WriteTableCSV(w io.Writer, t *roster.Table) error {
	return writeCSV(w, tableGrid(t))
}

// UpdateWorkbook は既存のブックの 1 シートだけをテーブルの内容で置き換えます。他のシートはそのまま残します。
// sheet が空の場合は先頭のシートを、ブックに無い場合は新しいシートを使います。
func UpdateWorkbook(f *excelize.File, sheet string, t *roster.Table) error {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return ErrNoWorksheet
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil {
		return fmt.Errorf("spreadsheet: sheet %q: %w", sheet, err)
	} else if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("spreadsheet: add sheet %q: %w", sheet, err)
		}
	}
	return fillSheet(f, sheet, tableGrid(t))
}

func writeXLSX(w io.Writer, sheet string, grid [][]string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("spreadsheet: rename sheet: %w", err)
	}
	if err := fillSheet(f, sheet, grid); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("spreadsheet: write xlsx: %w", err)
	}
	return nil
}

// fillSheet は表をシートの A1 から書き込み、表の外に残った古いセルを空にします。
func fillSheet(f *excelize.File, sheet string, grid [][]string) error {
	existing, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("spreadsheet: read sheet %q: %w", sheet, err)
	}
	for i, cells := range existing {
		width := 0
		if i < len(grid) {
			width = len(grid[i])
		}
		for j := width; j < len(cells); j++ {
			if cells[j] == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("spreadsheet: cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, nil); err != nil {
				return fmt.Errorf("spreadsheet: clear %s: %w", cell, err)
			}
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("spreadsheet: header style: %w", err)
	}

	for i, cells := range grid {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("spreadsheet: cell name: %w", err)
		}
		values := make([]any, len(cells))
		for j, v := range cells {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("spreadsheet: write row %d: %w", i+1, err)
		}
	}
	if len(grid) > 0 && len(grid[0]) > 0 {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return fmt.Errorf("spreadsheet: apply header style: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, grid [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(grid); err != nil {
		return fmt.Errorf("spreadsheet: write csv: %w", err)
	}
	return nil
}
