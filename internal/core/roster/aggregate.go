package roster

import (
	"fmt"
	"sort"
	"strings"
)

// KPIs は主要指標です。率はパーセントで、丸めは表示時にのみ行います。
// Total は Active と Departed の合計で、列挙外の在籍状態は Unclassified に数えます。
type KPIs struct {
	Total             int      `json:"total"`
	Active            int      `json:"active"`
	Departed          int      `json:"departed"`
	Unclassified      int      `json:"unclassified"`
	AttritionRate     float64  `json:"attrition_rate"`
	RetentionRate     float64  `json:"retention_rate"`
	AvgTenure         float64  `json:"avg_tenure"`
	AvgAge            float64  `json:"avg_age"`
	GenderRatio       string   `json:"gender_ratio"`
	MaleCount         int      `json:"male_count"`
	FemaleCount       int      `json:"female_count"`
	ContractorRatio   float64  `json:"contractor_ratio"`
	NationalityCount  *int     `json:"nationality_count,omitempty"`
	ProbationPassRate *float64 `json:"probation_pass_rate,omitempty"`
	YoYGrowthRate     *float64 `json:"yoy_growth_rate,omitempty"`
}

// ComputeKPIs は主要指標を計算します。空のテーブルではすべての件数と率が 0 になります。
func ComputeKPIs(t *DerivedTable) KPIs {
	var k KPIs
	if t == nil {
		return k
	}

	var (
		tenureSum, ageSum     float64
		tenureN, ageN         int
		contractors           int
		probationN, probation int
		nationalities         = make(map[string]struct{})
	)
	for _, r := range t.Records {
		switch r.Status {
		case StatusActive:
			k.Active++
		case StatusDeparted:
			k.Departed++
		default:
			k.Unclassified++
			continue
		}
		switch r.Gender {
		case GenderMale:
			k.MaleCount++
		case GenderFemale:
			k.FemaleCount++
		}
		if r.TenureMonths != nil {
			tenureSum += *r.TenureMonths
			tenureN++
		}
		if r.Age != nil && *r.Age > 0 {
			ageSum += *r.Age
			ageN++
		}
		if isContractor(r.EmploymentKind) {
			contractors++
		}
		if r.Nationality != "" {
			nationalities[strings.ToLower(r.Nationality)] = struct{}{}
		}
		if r.Probation != ProbationNoData {
			probationN++
			if r.Probation.Passed() {
				probation++
			}
		}
	}
	k.Total = k.Active + k.Departed
	k.GenderRatio = reducedRatio(k.MaleCount, k.FemaleCount)

	if k.Total > 0 {
		k.AttritionRate = percent(k.Departed, k.Total)
		k.RetentionRate = 100 - k.AttritionRate
		k.ContractorRatio = percent(contractors, k.Total)
	}
	if tenureN > 0 {
		k.AvgTenure = tenureSum / float64(tenureN)
	}
	if ageN > 0 {
		k.AvgAge = ageSum / float64(ageN)
	}
	if t.Columns.Has(FieldNationality) {
		n := len(nationalities)
		k.NationalityCount = &n
	}
	if t.Columns.Has(FieldProbationEndDate) {
		rate := 0.0
		if probationN > 0 {
			rate = percent(probation, probationN)
		}
		k.ProbationPassRate = &rate
	}
	k.YoYGrowthRate = yoyGrowth(t)
	return k
}

// yoyGrowth は基準年より前の、データに存在する直近 2 年の採用数を比較します。
func yoyGrowth(t *DerivedTable) *float64 {
	hires := make(map[int]int)
	for _, r := range t.Records {
		if r.JoinYear != nil && *r.JoinYear < t.AsOf.Year() {
			hires[*r.JoinYear]++
		}
	}
	if len(hires) < 2 {
		return nil
	}
	years := make([]int, 0, len(hires))
	for y := range hires {
		years = append(years, y)
	}
	sort.Ints(years)
	prev, last := hires[years[len(years)-2]], hires[years[len(years)-1]]
	rate := float64(last-prev) / float64(prev) * 100
	return &rate
}

func isContractor(kind string) bool {
	lower := strings.ToLower(kind)
	return strings.Contains(lower, "freelancer") || strings.Contains(lower, "contract")
}

// reducedRatio は男女比を最大公約数で約分した "男:女" 形式で返します。
func reducedRatio(male, female int) string {
	g := gcd(male, female)
	if g == 0 {
		return "0:0"
	}
	return fmt.Sprintf("%d:%d", male/g, female/g)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// CohortRow は入社年コホートの集計行です。
type CohortRow struct {
	JoinYear      int     `json:"join_year"`
	Active        int     `json:"active"`
	Departed      int     `json:"departed"`
	RetentionRate float64 `json:"retention_rate"`
}

// CohortRetention は入社年ごとの定着率を入社年の昇順で返します。
func CohortRetention(t *DerivedTable) []CohortRow {
	if t == nil {
		return nil
	}
	byYear := make(map[int]*CohortRow)
	for _, r := range t.Records {
		if r.JoinYear == nil {
			continue
		}
		row, ok := byYear[*r.JoinYear]
		if !ok {
			row = &CohortRow{JoinYear: *r.JoinYear}
			byYear[*r.JoinYear] = row
		}
		switch r.Status {
		case StatusActive:
			row.Active++
		case StatusDeparted:
			row.Departed++
		}
	}

	rows := make([]CohortRow, 0, len(byYear))
	for _, row := range byYear {
		row.RetentionRate = percent(row.Active, row.Active+row.Departed)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].JoinYear < rows[j].JoinYear })
	return rows
}

// ManagerRow は退職時の直属マネージャーごとの集計行です。
type ManagerRow struct {
	ManagerID     string  `json:"manager_id"`
	Departures    int     `json:"departures"`
	AvgTenure     float64 `json:"avg_tenure"`
	TopExitReason string  `json:"top_exit_reason"`
}

const noExitReason = "N/A"

// ManagerAttrition はマネージャー ID を持つ退職者を集計し、退職者数の降順 (同数は ID の昇順) で返します。
func ManagerAttrition(t *DerivedTable) []ManagerRow {
	if t == nil || !t.Columns.Has(FieldManagerID) {
		return nil
	}
	type acc struct {
		count     int
		tenureSum float64
		tenureN   int
		reasons   map[string]int
	}
	byManager := make(map[string]*acc)
	for _, r := range t.Records {
		if r.Status != StatusDeparted || r.ManagerID == "" {
			continue
		}
		a, ok := byManager[r.ManagerID]
		if !ok {
			a = &acc{reasons: make(map[string]int)}
			byManager[r.ManagerID] = a
		}
		a.count++
		if r.TenureMonths != nil {
			a.tenureSum += *r.TenureMonths
			a.tenureN++
		}
		if r.ExitReasonCategory != "" {
			a.reasons[r.ExitReasonCategory]++
		}
	}

	rows := make([]ManagerRow, 0, len(byManager))
	for id, a := range byManager {
		row := ManagerRow{ManagerID: id, Departures: a.count, TopExitReason: mode(a.reasons)}
		if a.tenureN > 0 {
			row.AvgTenure = a.tenureSum / float64(a.tenureN)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Departures != rows[j].Departures {
			return rows[i].Departures > rows[j].Departures
		}
		return rows[i].ManagerID < rows[j].ManagerID
	})
	return rows
}

// mode は最頻値を返します。同数の場合は辞書順で先のものを選びます。
func mode(counts map[string]int) string {
	best, bestN := noExitReason, 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
