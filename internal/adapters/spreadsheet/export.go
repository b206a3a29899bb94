package spreadsheet

import (
	"io"
	"strconv"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
)

// ExportSheet は集計用エクスポートのシート名です。
const ExportSheet = "Derived"

var derivedHeaders = []string{
	"Age",
	"Tenure (Months)",
	"Join Year",
	"Join Month",
	"Join Quarter",
	"Exit Year",
	"Exit Month",
	"Employment Category",
	"Probation Status",
}

// derivedGrid は算出済みテーブルを表示用に丸めた表に変換します。年齢は切り捨て、在籍月数は小数 1 桁です。
func derivedGrid(t *roster.DerivedTable) [][]string {
	fields := make([]roster.Field, 0, len(roster.CanonicalFields))
	for _, f := range roster.CanonicalFields {
		if f == roster.FieldRecordID || (t != nil && t.Columns.Has(f)) {
			fields = append(fields, f)
		}
	}

	header := make([]string, 0, len(fields)+len(derivedHeaders))
	for _, f := range fields {
		header = append(header, string(f))
	}
	header = append(header, derivedHeaders...)

	grid := [][]string{header}
	if t == nil {
		return grid
	}
	for _, r := range t.Records {
		row := make([]string, 0, len(header))
		for _, f := range fields {
			row = append(row, r.Value(f))
		}
		age := ""
		if years, ok := r.TruncatedAge(); ok {
			age = strconv.Itoa(years)
		}
		tenure := ""
		if r.TenureMonths != nil {
			tenure = strconv.FormatFloat(*r.TenureMonths, 'f', 1, 64)
		}
		row = append(row,
			age,
			tenure,
			optionalInt(r.JoinYear),
			r.JoinMonth,
			r.JoinQuarter,
			optionalInt(r.ExitYear),
			r.ExitMonth,
			r.EmploymentKind,
			string(r.Probation),
		)
		grid = append(grid, row)
	}
	return grid
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// ExportCSV は算出済みテーブルを CSV で書き出します。
func ExportCSV(w io.Writer, t *roster.DerivedTable) error {
	return writeCSV(w, derivedGrid(t))
}

// ExportXLSX は算出済みテーブルを xlsx で書き出します。
func ExportXLSX(w io.Writer, t *roster.DerivedTable) error {
	return writeXLSX(w, ExportSheet, derivedGrid(t))
}
