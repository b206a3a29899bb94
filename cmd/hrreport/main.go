package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogurasousui/hr-analytics/internal/adapters/spreadsheet"
	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/ogurasousui/hr-analytics/internal/platform/config"
	"github.com/ogurasousui/hr-analytics/internal/platform/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	file     string
	sheet    string
	asOf     string
	logLevel string

	departments []string
	statuses    []string
	genders     []string
	employment  []string
	vendors     []string
	joinFrom    int
	joinTo      int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "hrreport",
		Short:         "Summaries and exports of an employee spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.file, "file", "", "employee spreadsheet (.xlsx, .xls or .csv) (required)")
	flags.StringVar(&opts.sheet, "sheet", "", "worksheet name (default: first sheet)")
	flags.StringVar(&opts.asOf, "as-of", "", "reference date YYYY-MM-DD (default: today)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flags.StringSliceVar(&opts.departments, "department", nil, "only include these departments")
	flags.StringSliceVar(&opts.statuses, "status", nil, "only include these statuses (Active, Departed)")
	flags.StringSliceVar(&opts.genders, "gender", nil, "only include these genders (M, F)")
	flags.StringSliceVar(&opts.employment, "employment", nil, "only include these employment categories")
	flags.StringSliceVar(&opts.vendors, "vendor", nil, "only include these vendors (\"Direct Hire\" for none)")
	flags.IntVar(&opts.joinFrom, "join-from", 0, "earliest join year")
	flags.IntVar(&opts.joinTo, "join-to", 0, "latest join year")
	_ = cmd.MarkPersistentFlagRequired("file")

	cmd.AddCommand(newReportCmd(opts), newExportCmd(opts), newValidateCmd(opts))
	return cmd
}

func (o *rootOptions) filter() roster.Filter {
	f := roster.Filter{
		Departments:     o.departments,
		EmploymentKinds: o.employment,
		Vendors:         o.vendors,
		JoinYearFrom:    o.joinFrom,
		JoinYearTo:      o.joinTo,
	}
	for _, s := range o.statuses {
		f.Statuses = append(f.Statuses, roster.Status(s))
	}
	for _, g := range o.genders {
		f.Genders = append(f.Genders, roster.Gender(g))
	}
	return f
}

func (o *rootOptions) asOfDate() (*time.Time, error) {
	if o.asOf == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", o.asOf)
	if err != nil {
		return nil, fmt.Errorf("invalid --as-of: %w", err)
	}
	return &t, nil
}

// service は --file の台帳を読み込む Service を組み立てます。
func (o *rootOptions) service() (*roster.Service, *zap.Logger, error) {
	zl, err := logger.New(config.LogConfig{Level: o.logLevel, Format: "console"})
	if err != nil {
		return nil, nil, err
	}
	store, err := spreadsheet.NewStore(o.file, o.sheet)
	if err != nil {
		return nil, nil, err
	}
	return roster.NewService(store, nil, nil, roster.WithLogger(zl)), zl, nil
}
