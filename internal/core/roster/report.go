package roster

import (
	"fmt"
	"io"
	"text/tabwriter"
)

const reportTopExitReasons = 5

// WriteSummary は集計結果をテキストのレポートとして書き出します。率は小数 1 桁に丸めます。
func WriteSummary(w io.Writer, d *Dashboard) error {
	if d == nil {
		d = BuildDashboard(nil)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	k := d.KPIs

	fmt.Fprintf(tw, "HR summary as of %s\n\n", d.AsOf.Format(dateLayout))
	fmt.Fprintf(tw, "Headcount\t%d\t(active %d, departed %d)\n", k.Total, k.Active, k.Departed)
	if k.Unclassified > 0 {
		fmt.Fprintf(tw, "Unclassified status\t%d\t\n", k.Unclassified)
	}
	fmt.Fprintf(tw, "Attrition rate\t%.1f%%\t\n", k.AttritionRate)
	fmt.Fprintf(tw, "Retention rate\t%.1f%%\t\n", k.RetentionRate)
	fmt.Fprintf(tw, "Average tenure\t%.1f months\t\n", k.AvgTenure)
	fmt.Fprintf(tw, "Average age\t%.1f\t\n", k.AvgAge)
	fmt.Fprintf(tw, "Gender ratio (M:F)\t%s\t\n", k.GenderRatio)
	fmt.Fprintf(tw, "Contractor ratio\t%.1f%%\t\n", k.ContractorRatio)
	if k.NationalityCount != nil {
		fmt.Fprintf(tw, "Nationalities\t%d\t\n", *k.NationalityCount)
	}
	if k.ProbationPassRate != nil {
		fmt.Fprintf(tw, "Probation pass rate\t%.1f%%\t\n", *k.ProbationPassRate)
	}
	if k.YoYGrowthRate != nil {
		fmt.Fprintf(tw, "YoY hiring growth\t%.1f%%\t\n", *k.YoYGrowthRate)
	}
	fmt.Fprintf(tw, "Regrettable departures\t%d\t(%.1f%% of departed)\n", d.Regrettable.Count, d.Regrettable.ShareOfDeparted)
	fmt.Fprintf(tw, "Early leavers (<= 6 months)\t%d\t(%.1f%% of departed)\n", d.EarlyLeavers.Count, d.EarlyLeavers.ShareOfDeparted)

	if len(d.Departments) > 0 {
		fmt.Fprintf(tw, "\nDepartment\tTotal\tActive\tDeparted\tAttrition\n")
		for _, row := range d.Departments {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f%%\n", row.Key, row.Total, row.Active, row.Departed, row.AttritionRate)
		}
	}

	if len(d.ExitReasons) > 0 {
		fmt.Fprintf(tw, "\nTop exit reasons\tCount\n")
		for i, row := range d.ExitReasons {
			if i == reportTopExitReasons {
				break
			}
			fmt.Fprintf(tw, "%s\t%d\n", row.Label, row.Count)
		}
	}

	return tw.Flush()
}
