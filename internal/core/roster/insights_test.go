package roster

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insightsTable() *DerivedTable {
	withVendor := func(r Record, dept, vendor string) Record {
		r.Department = dept
		r.Vendor = vendor
		return r
	}
	records := []Record{
		withVendor(activeRecord("a", day(2022, time.January, 10)), "Engineering", "Agency X"),
		withVendor(activeRecord("b", day(2023, time.January, 20)), "Engineering", ""),
		withVendor(departedRecord("c", day(2022, time.March, 1), day(2023, time.June, 1), ExitTypeResigned, "Career & Growth"), "Engineering", "Agency X"),
		withVendor(departedRecord("d", day(2023, time.January, 5), day(2023, time.March, 1), ExitTypeTerminated, "Failed Probation"), "Sales", ""),
		withVendor(departedRecord("e", day(2023, time.June, 1), day(2024, time.March, 1), ExitTypeDropped, "Relocation"), "Sales", "Agency Y"),
		withVendor(departedRecord("f", day(2021, time.June, 1), day(2024, time.March, 15), ExitTypeResigned, "Career & Growth"), "Support", ""),
		withVendor(activeRecord("g", day(2024, time.May, 1)), "Support", ""),
	}
	return Derive(tableOf(records...), asOfJune2024)
}

func TestDepartmentAttrition(t *testing.T) {
	t.Parallel()

	rows := DepartmentAttrition(insightsTable())
	require.Len(t, rows, 3)

	assert.Equal(t, GroupRow{Key: "Sales", Total: 2, Active: 0, Departed: 2, AttritionRate: 100}, rows[0])
	assert.Equal(t, "Support", rows[1].Key)
	assert.InDelta(t, 50.0, rows[1].AttritionRate, 1e-9)
	assert.Equal(t, "Engineering", rows[2].Key)
	assert.InDelta(t, 100.0/3, rows[2].AttritionRate, 1e-9)
}

func TestVendorAttrition(t *testing.T) {
	t.Parallel()

	rows, ok := VendorAttrition(insightsTable())
	require.True(t, ok)
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"Agency Y", "Agency X", "Direct Hire"}, keys)

	_, ok = VendorAttrition(Derive(tableOf(activeRecord("a", day(2024, time.January, 1))), asOfJune2024))
	assert.False(t, ok)
}

func TestComputeTurnoverMix(t *testing.T) {
	t.Parallel()

	mix := ComputeTurnoverMix(insightsTable())
	assert.Equal(t, 4, mix.Departed)
	assert.Equal(t, 3, mix.Voluntary)
	assert.Equal(t, 1, mix.Involuntary)
	assert.Zero(t, mix.Unspecified)
	assert.InDelta(t, 75.0, mix.VoluntaryRate, 1e-9)
	assert.InDelta(t, 25.0, mix.InvoluntaryRate, 1e-9)
}

func TestRegrettableTurnover(t *testing.T) {
	t.Parallel()

	got := RegrettableTurnover(insightsTable())
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, []string{"c", "f"}, got.RecordIDs)
	assert.InDelta(t, 50.0, got.ShareOfDeparted, 1e-9)
}

func TestComputeNewHireRetention(t *testing.T) {
	t.Parallel()

	got := ComputeNewHireRetention(insightsTable())
	// g joined within the last 90 days; d left 55 days after joining.
	assert.Equal(t, 6, got.Measurable)
	assert.Equal(t, 1, got.LeftWithin90)
	assert.InDelta(t, 100-100.0/6, got.RetentionRate, 1e-9)
}

func TestTrends(t *testing.T) {
	t.Parallel()

	table := insightsTable()

	hires := HiringTrend(table)
	require.NotEmpty(t, hires)
	assert.Equal(t, Tally{Label: "2021-06", Count: 1}, hires[0])
	assert.Equal(t, Tally{Label: "2023-01", Count: 2}, hires[3])

	exits := ExitTrend(table)
	assert.Equal(t, []Tally{
		{Label: "2023-03", Count: 1},
		{Label: "2023-06", Count: 1},
		{Label: "2024-03", Count: 2},
	}, exits)

	flows := HireExitRatio(table)
	require.Len(t, flows, 4)
	assert.Equal(t, 2021, flows[0].Year)
	assert.Nil(t, flows[0].Ratio)
	assert.Equal(t, 2023, flows[2].Year)
	assert.Equal(t, 3, flows[2].Hires)
	assert.Equal(t, 2, flows[2].Exits)
	require.NotNil(t, flows[2].Ratio)
	assert.InDelta(t, 1.5, *flows[2].Ratio, 1e-9)
}

func TestComputeTenureStats(t *testing.T) {
	t.Parallel()

	table := Derive(tableOf(
		activeRecord("a", day(2024, time.May, 2)),
		activeRecord("b", day(2024, time.April, 2)),
		activeRecord("c", day(2024, time.January, 1)),
		activeRecord("d", nil),
	), asOfJune2024)

	stats := ComputeTenureStats(table)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 30/30.44, stats.Min, 1e-9)
	assert.InDelta(t, 152/30.44, stats.Max, 1e-9)
	assert.InDelta(t, 60/30.44, stats.Median, 1e-9)
	assert.InDelta(t, 242.0/3/30.44, stats.Mean, 1e-9)

	assert.Zero(t, ComputeTenureStats(Derive(nil, asOfJune2024)).Count)
}

func TestExitReasonCounts(t *testing.T) {
	t.Parallel()

	got := ExitReasonCounts(insightsTable())
	require.Len(t, got, 3)
	assert.Equal(t, Tally{Label: "Career & Growth", Count: 2}, got[0])
}

func TestBuildDashboard(t *testing.T) {
	t.Parallel()

	d := BuildDashboard(insightsTable())
	assert.Equal(t, asOfJune2024, d.AsOf)
	assert.Equal(t, 7, d.Records)
	assert.Equal(t, 7, d.KPIs.Total)
	assert.NotEmpty(t, d.Vendors)
	assert.Nil(t, d.Managers)
	assert.Len(t, d.TenureByDept, 3)
	assert.Equal(t, 1, d.EarlyLeavers.Count)
	assert.Nil(t, d.PositionChanges)
	assert.Len(t, d.RollingTurnover.Quarterly, 6)

	empty := BuildDashboard(Derive(nil, asOfJune2024))
	assert.Zero(t, empty.KPIs.Total)
	assert.Empty(t, empty.Cohorts)
	assert.Empty(t, empty.Vendors)
}

func TestTenureByDepartment(t *testing.T) {
	t.Parallel()

	rows := TenureByDepartment(insightsTable())
	require.Len(t, rows, 3)

	assert.Equal(t, "Engineering", rows[0].Department)
	assert.Equal(t, 3, rows[0].Count)
	assert.InDelta(t, (873.0+498+457)/3/30.44, rows[0].Mean, 1e-9)
	assert.InDelta(t, 498/30.44, rows[0].Median, 1e-9)

	assert.Equal(t, "Support", rows[1].Department)
	assert.InDelta(t, (1018.0+31)/2/30.44, rows[1].Mean, 1e-9)

	assert.Equal(t, "Sales", rows[2].Department)
	assert.Equal(t, 2, rows[2].Count)
	assert.InDelta(t, (55.0+274)/2/30.44, rows[2].Mean, 1e-9)
	assert.InDelta(t, rows[2].Mean, rows[2].Median, 1e-9)

	assert.Empty(t, TenureByDepartment(Derive(nil, asOfJune2024)))
}

func TestComputeEarlyLeavers(t *testing.T) {
	t.Parallel()

	got := ComputeEarlyLeavers(insightsTable())
	assert.Equal(t, 1, got.Count)
	assert.InDelta(t, 25.0, got.ShareOfDeparted, 1e-9)
	assert.InDelta(t, 55/30.44, got.MeanTenureMonths, 1e-9)
	assert.Equal(t, []Tally{{Label: "Failed Probation", Count: 1}}, got.Reasons)

	none := ComputeEarlyLeavers(Derive(tableOf(activeRecord("a", day(2024, time.January, 1))), asOfJune2024))
	assert.Zero(t, none.Count)
	assert.Zero(t, none.ShareOfDeparted)
	assert.Empty(t, none.Reasons)
}

func TestComputePositionChanges(t *testing.T) {
	t.Parallel()

	promoted := activeRecord("a", day(2022, time.January, 1))
	promoted.PositionAfterJoining = "Senior Engineer"
	unchanged := activeRecord("b", day(2022, time.January, 1))
	unchanged.PositionAfterJoining = "Engineer"
	noData := activeRecord("c", day(2022, time.January, 1))
	moved := activeRecord("d", day(2022, time.January, 1))
	moved.Department = "Sales"
	moved.PositionAfterJoining = "Account Executive"

	got, ok := ComputePositionChanges(Derive(tableOf(promoted, unchanged, noData, moved), asOfJune2024))
	require.True(t, ok)
	assert.Equal(t, 3, got.WithData)
	assert.Equal(t, 2, got.Changed)
	assert.Equal(t, []Tally{{Label: "Engineering", Count: 1}, {Label: "Sales", Count: 1}}, got.ByDepartment)

	_, ok = ComputePositionChanges(insightsTable())
	assert.False(t, ok)
}

func TestComputeRollingTurnover(t *testing.T) {
	t.Parallel()

	got := ComputeRollingTurnover(insightsTable())

	periods := make([]string, 0, len(got.Monthly))
	for _, p := range got.Monthly {
		periods = append(periods, p.Period)
	}
	assert.Equal(t, []string{"2021-06", "2022-01", "2022-03", "2023-01", "2023-03", "2023-06", "2024-03", "2024-05"}, periods)

	assert.Equal(t, TurnoverPeriod{Period: "2023-03", Exits: 1, CumulativeHires: 5, Rate: 20}, got.Monthly[4])
	assert.InDelta(t, 100.0/6, got.Monthly[5].Rate, 1e-9)
	assert.InDelta(t, 200.0/6, got.Monthly[6].Rate, 1e-9)
	assert.Zero(t, got.Monthly[7].Rate)

	assert.Equal(t, []TurnoverPeriod{
		{Period: "2021Q2", Hires: 1},
		{Period: "2022Q1", Hires: 2},
		{Period: "2023Q1", Hires: 2, Exits: 1, Rate: 50},
		{Period: "2023Q2", Hires: 1, Exits: 1, Rate: 100},
		{Period: "2024Q1", Exits: 2, Rate: 200},
		{Period: "2024Q2", Hires: 1},
	}, got.Quarterly)

	quiet := ComputeRollingTurnover(Derive(tableOf(activeRecord("a", day(2024, time.January, 1))), asOfJune2024))
	assert.Empty(t, quiet.Monthly)
	assert.Empty(t, quiet.Quarterly)
}

func TestComputeRollingTurnover_KeepsLatestWindow(t *testing.T) {
	t.Parallel()

	records := make([]Record, 0, 30)
	for i := 0; i < 30; i++ {
		join := time.Date(2020, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC)
		records = append(records, activeRecord(fmt.Sprintf("r%d", i), &join))
	}
	records = append(records, departedRecord("x", day(2020, time.January, 1), day(2022, time.June, 1), ExitTypeResigned, "Career & Growth"))

	got := ComputeRollingTurnover(Derive(tableOf(records...), asOfJune2024))
	require.Len(t, got.Monthly, 24)
	assert.Equal(t, "2020-07", got.Monthly[0].Period)
	assert.Equal(t, "2022-06", got.Monthly[23].Period)
	assert.Equal(t, 1, got.Monthly[0].CumulativeHires)
}
