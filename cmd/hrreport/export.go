package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ogurasousui/hr-analytics/internal/adapters/spreadsheet"
	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		out    string
		query  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered records with derived fields as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("invalid --format %q: want csv or xlsx", format)
			}
			if format == "xlsx" && out == "" {
				return fmt.Errorf("--out is required for xlsx exports")
			}
			asOf, err := opts.asOfDate()
			if err != nil {
				return err
			}
			svc, zl, err := opts.service()
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()

			res, err := svc.ListRecords(cmd.Context(), roster.ListRecordsInput{Filter: opts.filter(), Query: query, AsOf: asOf})
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			if format == "xlsx" {
				return spreadsheet.ExportXLSX(w, res.Table)
			}
			return spreadsheet.ExportCSV(w, res.Table)
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout, csv only)")
	cmd.Flags().StringVar(&query, "query", "", "only include records whose name, ID or manager ID contains this text")
	return cmd
}
