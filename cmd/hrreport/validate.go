package main

import (
	"fmt"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "List rejected rows and data-quality defects found while normalizing the file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, zl, err := opts.service()
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()

			res, err := svc.ListRecords(cmd.Context(), roster.ListRecordsInput{})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "records: %d, rejected: %d, defects: %d\n", res.Table.Len(), len(res.Rejected), len(res.Defects))
			for _, d := range res.Rejected {
				fmt.Fprintf(w, "rejected %s\n", d)
			}
			for _, d := range res.Defects {
				fmt.Fprintf(w, "defect   %s\n", d)
			}
			if strict && len(res.Rejected)+len(res.Defects) > 0 {
				return fmt.Errorf("%d rejected rows and %d defects", len(res.Rejected), len(res.Defects))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any row is rejected or flagged")
	return cmd
}
