package main

import (
	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/spf13/cobra"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print a plain-text summary of KPIs, departments and exit reasons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := opts.asOfDate()
			if err != nil {
				return err
			}
			svc, zl, err := opts.service()
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()

			d, err := svc.Dashboard(cmd.Context(), roster.DashboardInput{Filter: opts.filter(), AsOf: asOf})
			if err != nil {
				return err
			}
			return roster.WriteSummary(cmd.OutOrStdout(), d)
		},
	}
}
