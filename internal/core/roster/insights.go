package roster

import (
	"fmt"
	"sort"
	"time"
)

const (
	regrettableTenureMonths = 12.0
	earlyLeaverMonths       = 6.0
	newHireWindowDays       = 90
	turnoverWindowPeriods   = 24
	directHireVendor        = "Direct Hire"
)

// GroupRow は任意のキーごとの在籍・退職集計行です。
type GroupRow struct {
	Key           string  `json:"key"`
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	Departed      int     `json:"departed"`
	AttritionRate float64 `json:"attrition_rate"`
}

func groupAttrition(t *DerivedTable, key func(DerivedRecord) string) []GroupRow {
	byKey := make(map[string]*GroupRow)
	for _, r := range t.Records {
		if !r.Status.IsCanonical() {
			continue
		}
		k := key(r)
		row, ok := byKey[k]
		if !ok {
			row = &GroupRow{Key: k}
			byKey[k] = row
		}
		row.Total++
		if r.Status == StatusActive {
			row.Active++
		} else {
			row.Departed++
		}
	}
	rows := make([]GroupRow, 0, len(byKey))
	for _, row := range byKey {
		row.AttritionRate = percent(row.Departed, row.Total)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AttritionRate != rows[j].AttritionRate {
			return rows[i].AttritionRate > rows[j].AttritionRate
		}
		return rows[i].Key < rows[j].Key
	})
	return rows
}

// DepartmentAttrition は部署ごとの離職率を降順で返します。
func DepartmentAttrition(t *DerivedTable) []GroupRow {
	if t == nil {
		return nil
	}
	return groupAttrition(t, func(r DerivedRecord) string { return r.Department })
}

// VendorAttrition は採用経路ごとの離職率を返します。Vendor 列が無い場合は false を返します。
func VendorAttrition(t *DerivedTable) ([]GroupRow, bool) {
	if t == nil || !t.Columns.Has(FieldVendor) {
		return nil, false
	}
	return groupAttrition(t, func(r DerivedRecord) string {
		if r.Vendor == "" {
			return directHireVendor
		}
		return r.Vendor
	}), true
}

// TurnoverMix は自己都合 (Resigned, Dropped) と会社都合 (Terminated) の内訳です。
type TurnoverMix struct {
	Departed        int     `json:"departed"`
	Voluntary       int     `json:"voluntary"`
	Involuntary     int     `json:"involuntary"`
	Unspecified     int     `json:"unspecified"`
	VoluntaryRate   float64 `json:"voluntary_rate"`
	InvoluntaryRate float64 `json:"involuntary_rate"`
}

func ComputeTurnoverMix(t *DerivedTable) TurnoverMix {
	var m TurnoverMix
	if t == nil {
		return m
	}
	for _, r := range t.Records {
		if r.Status != StatusDeparted {
			continue
		}
		m.Departed++
		switch {
		case r.ExitType.Voluntary():
			m.Voluntary++
		case r.ExitType == ExitTypeTerminated:
			m.Involuntary++
		default:
			m.Unspecified++
		}
	}
	m.VoluntaryRate = percent(m.Voluntary, m.Departed)
	m.InvoluntaryRate = percent(m.Involuntary, m.Departed)
	return m
}

// Regrettable は在籍 12 か月以上での自己都合退職 (Resigned) の件数です。
type Regrettable struct {
	Count           int      `json:"count"`
	ShareOfDeparted float64  `json:"share_of_departed"`
	RecordIDs       []string `json:"record_ids"`
}

// IsRegrettable はレコードが惜しまれる退職に該当するかを返します。
func (d DerivedRecord) IsRegrettable() bool {
	return d.Status == StatusDeparted &&
		d.ExitType == ExitTypeResigned &&
		d.TenureMonths != nil &&
		*d.TenureMonths >= regrettableTenureMonths
}

func RegrettableTurnover(t *DerivedTable) Regrettable {
	var out Regrettable
	if t == nil {
		return out
	}
	departed := 0
	for _, r := range t.Records {
		if r.Status == StatusDeparted {
			departed++
		}
		if r.IsRegrettable() {
			out.Count++
			out.RecordIDs = append(out.RecordIDs, r.ID)
		}
	}
	out.ShareOfDeparted = percent(out.Count, departed)
	return out
}

// NewHireRetention は入社後 90 日以内の離職を測る指標です。
type NewHireRetention struct {
	Measurable    int     `json:"measurable"`
	LeftWithin90  int     `json:"left_within_90"`
	RetentionRate float64 `json:"retention_rate"`
}

// ComputeNewHireRetention は基準日の 90 日以上前に入社したレコードを対象に算出します。
func ComputeNewHireRetention(t *DerivedTable) NewHireRetention {
	var out NewHireRetention
	if t == nil {
		return out
	}
	cutoff := t.AsOf.AddDate(0, 0, -newHireWindowDays)
	for _, r := range t.Records {
		if r.JoinDate == nil || r.JoinDate.After(cutoff) || !r.Status.IsCanonical() {
			continue
		}
		out.Measurable++
		if r.Status == StatusDeparted && r.ExitDate != nil && daysBetween(*r.JoinDate, *r.ExitDate) <= newHireWindowDays {
			out.LeftWithin90++
		}
	}
	if out.Measurable > 0 {
		out.RetentionRate = 100 - percent(out.LeftWithin90, out.Measurable)
	}
	return out
}

// Tally は期間やカテゴリなどのラベルごとの件数です。
type Tally struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// HiringTrend は入社月ごとの採用数を昇順で返します。
func HiringTrend(t *DerivedTable) []Tally {
	if t == nil {
		return nil
	}
	return countBy(t.Records, func(r DerivedRecord) string { return r.JoinMonth })
}

// ExitTrend は退職月ごとの退職数を昇順で返します。
func ExitTrend(t *DerivedTable) []Tally {
	if t == nil {
		return nil
	}
	return countBy(t.Records, func(r DerivedRecord) string {
		if r.Status != StatusDeparted {
			return ""
		}
		return r.ExitMonth
	})
}

func countBy(records []DerivedRecord, key func(DerivedRecord) string) []Tally {
	counts := make(map[string]int)
	for _, r := range records {
		if k := key(r); k != "" {
			counts[k]++
		}
	}
	out := make([]Tally, 0, len(counts))
	for k, n := range counts {
		out = append(out, Tally{Label: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// YearFlow は年ごとの採用数・退職数と採用退職比です。退職が 0 の年は Ratio が nil です。
type YearFlow struct {
	Year  int      `json:"year"`
	Hires int      `json:"hires"`
	Exits int      `json:"exits"`
	Ratio *float64 `json:"ratio,omitempty"`
}

func HireExitRatio(t *DerivedTable) []YearFlow {
	if t == nil {
		return nil
	}
	byYear := make(map[int]*YearFlow)
	get := func(y int) *YearFlow {
		f, ok := byYear[y]
		if !ok {
			f = &YearFlow{Year: y}
			byYear[y] = f
		}
		return f
	}
	for _, r := range t.Records {
		if r.JoinYear != nil {
			get(*r.JoinYear).Hires++
		}
		if r.Status == StatusDeparted && r.ExitYear != nil {
			get(*r.ExitYear).Exits++
		}
	}
	out := make([]YearFlow, 0, len(byYear))
	for _, f := range byYear {
		if f.Exits > 0 {
			ratio := float64(f.Hires) / float64(f.Exits)
			f.Ratio = &ratio
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// TenureStats は在籍月数の要約統計です。
type TenureStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

func ComputeTenureStats(t *DerivedTable) TenureStats {
	var s TenureStats
	if t == nil {
		return s
	}
	values := make([]float64, 0, len(t.Records))
	for _, r := range t.Records {
		if r.TenureMonths != nil {
			values = append(values, *r.TenureMonths)
		}
	}
	if len(values) == 0 {
		return s
	}
	sort.Float64s(values)
	s.Count = len(values)
	s.Min = values[0]
	s.Max = values[len(values)-1]
	s.Mean = mean(values)
	s.Median = median(values)
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median は昇順に並んだ値の中央値を返します。
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// DepartmentTenure は部署ごとの在籍月数の平均と中央値です。
type DepartmentTenure struct {
	Department string  `json:"department"`
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
}

// TenureByDepartment は在籍月数が分かるレコードを部署ごとに集計し、平均の降順で返します。
func TenureByDepartment(t *DerivedTable) []DepartmentTenure {
	if t == nil {
		return nil
	}
	byDept := make(map[string][]float64)
	for _, r := range t.Records {
		if r.TenureMonths != nil {
			byDept[r.Department] = append(byDept[r.Department], *r.TenureMonths)
		}
	}
	out := make([]DepartmentTenure, 0, len(byDept))
	for dept, values := range byDept {
		sort.Float64s(values)
		out = append(out, DepartmentTenure{
			Department: dept,
			Count:      len(values),
			Mean:       mean(values),
			Median:     median(values),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mean != out[j].Mean {
			return out[i].Mean > out[j].Mean
		}
		return out[i].Department < out[j].Department
	})
	return out
}

// EarlyLeavers は在籍 6 か月以内で退職したレコードの集計です。
type EarlyLeavers struct {
	Count            int     `json:"count"`
	ShareOfDeparted  float64 `json:"share_of_departed"`
	MeanTenureMonths float64 `json:"mean_tenure_months"`
	Reasons          []Tally `json:"reasons"`
}

func ComputeEarlyLeavers(t *DerivedTable) EarlyLeavers {
	var out EarlyLeavers
	if t == nil {
		return out
	}
	departed := 0
	var early []DerivedRecord
	var tenures []float64
	for _, r := range t.Records {
		if r.Status != StatusDeparted {
			continue
		}
		departed++
		if r.TenureMonths != nil && *r.TenureMonths <= earlyLeaverMonths {
			early = append(early, r)
			tenures = append(tenures, *r.TenureMonths)
		}
	}
	out.Count = len(early)
	out.ShareOfDeparted = percent(out.Count, departed)
	out.MeanTenureMonths = mean(tenures)
	out.Reasons = countBy(early, func(r DerivedRecord) string { return r.ExitReasonCategory })
	sort.SliceStable(out.Reasons, func(i, j int) bool { return out.Reasons[i].Count > out.Reasons[j].Count })
	return out
}

// PositionChanges は入社後の職位変更の件数です。WithData は入社後職位が入力されているレコード数です。
type PositionChanges struct {
	WithData     int     `json:"with_data"`
	Changed      int     `json:"changed"`
	ByDepartment []Tally `json:"by_department"`
}

// ComputePositionChanges は入社後職位の列が無い場合に false を返します。
func ComputePositionChanges(t *DerivedTable) (PositionChanges, bool) {
	var out PositionChanges
	if t == nil || !t.Columns.Has(FieldPositionAfterJoining) {
		return out, false
	}
	var changed []DerivedRecord
	for _, r := range t.Records {
		if r.PositionAfterJoining == "" {
			continue
		}
		out.WithData++
		if r.PositionAfterJoining != r.Position {
			changed = append(changed, r)
		}
	}
	out.Changed = len(changed)
	out.ByDepartment = countBy(changed, func(r DerivedRecord) string { return r.Department })
	sort.SliceStable(out.ByDepartment, func(i, j int) bool { return out.ByDepartment[i].Count > out.ByDepartment[j].Count })
	return out, true
}

// TurnoverPeriod は期間ごとの採用数・退職数と離職率 (%) です。
// 月次では Hires の累計を、四半期では期間内の Hires を分母にします。分母が 0 の場合は 1 とみなします。
type TurnoverPeriod struct {
	Period          string  `json:"period"`
	Hires           int     `json:"hires"`
	Exits           int     `json:"exits"`
	CumulativeHires int     `json:"cumulative_hires,omitempty"`
	Rate            float64 `json:"rate"`
}

// RollingTurnover は直近 24 か月分の月次と、それを四半期にまとめた離職率です。
type RollingTurnover struct {
	Monthly   []TurnoverPeriod `json:"monthly"`
	Quarterly []TurnoverPeriod `json:"quarterly"`
}

// ComputeRollingTurnover は採用または退職があった月を対象にします。退職者がいない場合は空です。
func ComputeRollingTurnover(t *DerivedTable) RollingTurnover {
	var out RollingTurnover
	if t == nil {
		return out
	}
	byMonth := make(map[string]*TurnoverPeriod)
	get := func(month string) *TurnoverPeriod {
		p, ok := byMonth[month]
		if !ok {
			p = &TurnoverPeriod{Period: month}
			byMonth[month] = p
		}
		return p
	}
	exits := 0
	for _, r := range t.Records {
		if r.JoinMonth != "" {
			get(r.JoinMonth).Hires++
		}
		if r.Status == StatusDeparted && r.ExitMonth != "" {
			get(r.ExitMonth).Exits++
			exits++
		}
	}
	if exits == 0 {
		return out
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	if len(months) > turnoverWindowPeriods {
		months = months[len(months)-turnoverWindowPeriods:]
	}

	cumulative := 0
	var quarters []string
	byQuarter := make(map[string]*TurnoverPeriod)
	for _, m := range months {
		p := *byMonth[m]
		cumulative += p.Hires
		p.CumulativeHires = cumulative
		p.Rate = turnoverRate(p.Exits, cumulative)
		out.Monthly = append(out.Monthly, p)

		q := quarterOfMonth(m)
		qp, ok := byQuarter[q]
		if !ok {
			qp = &TurnoverPeriod{Period: q}
			byQuarter[q] = qp
			quarters = append(quarters, q)
		}
		qp.Hires += p.Hires
		qp.Exits += p.Exits
	}
	for _, q := range quarters {
		qp := *byQuarter[q]
		qp.Rate = turnoverRate(qp.Exits, qp.Hires)
		out.Quarterly = append(out.Quarterly, qp)
	}
	return out
}

func turnoverRate(exits, hires int) float64 {
	if hires == 0 {
		hires = 1
	}
	return float64(exits) / float64(hires) * 100
}

// quarterOfMonth は "2006-01" 形式の月を "2006Q1" 形式の四半期に変換します。
func quarterOfMonth(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1)
}

// Dashboard は集計結果一式です。
type Dashboard struct {
	AsOf             time.Time          `json:"as_of"`
	Records          int                `json:"records"`
	KPIs             KPIs               `json:"kpis"`
	Cohorts          []CohortRow        `json:"cohorts"`
	Managers         []ManagerRow       `json:"managers"`
	Departments      []GroupRow         `json:"departments"`
	Vendors          []GroupRow         `json:"vendors,omitempty"`
	TurnoverMix      TurnoverMix        `json:"turnover_mix"`
	Regrettable      Regrettable        `json:"regrettable"`
	NewHireRetention NewHireRetention   `json:"new_hire_retention"`
	HiringTrend      []Tally            `json:"hiring_trend"`
	ExitTrend        []Tally            `json:"exit_trend"`
	HireExitRatio    []YearFlow         `json:"hire_exit_ratio"`
	Tenure           TenureStats        `json:"tenure"`
	TenureByDept     []DepartmentTenure `json:"tenure_by_department"`
	EarlyLeavers     EarlyLeavers       `json:"early_leavers"`
	PositionChanges  *PositionChanges   `json:"position_changes,omitempty"`
	RollingTurnover  RollingTurnover    `json:"rolling_turnover"`
	ExitReasons      []Tally            `json:"exit_reasons"`
}

// BuildDashboard はすべての集計を実行します。
func BuildDashboard(t *DerivedTable) *Dashboard {
	d := &Dashboard{
		Records:          t.Len(),
		KPIs:             ComputeKPIs(t),
		Cohorts:          CohortRetention(t),
		Managers:         ManagerAttrition(t),
		Departments:      DepartmentAttrition(t),
		TurnoverMix:      ComputeTurnoverMix(t),
		Regrettable:      RegrettableTurnover(t),
		NewHireRetention: ComputeNewHireRetention(t),
		HiringTrend:      HiringTrend(t),
		ExitTrend:        ExitTrend(t),
		HireExitRatio:    HireExitRatio(t),
		Tenure:           ComputeTenureStats(t),
		TenureByDept:     TenureByDepartment(t),
		EarlyLeavers:     ComputeEarlyLeavers(t),
		RollingTurnover:  ComputeRollingTurnover(t),
		ExitReasons:      ExitReasonCounts(t),
	}
	if t != nil {
		d.AsOf = t.AsOf
	}
	if vendors, ok := VendorAttrition(t); ok {
		d.Vendors = vendors
	}
	if changes, ok := ComputePositionChanges(t); ok {
		d.PositionChanges = &changes
	}
	return d
}

// ExitReasonCounts は退職理由カテゴリごとの件数を件数の降順で返します。
func ExitReasonCounts(t *DerivedTable) []Tally {
	if t == nil {
		return nil
	}
	out := countBy(t.Records, func(r DerivedRecord) string {
		if r.Status != StatusDeparted {
			return ""
		}
		return r.ExitReasonCategory
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Clone は集計結果のディープコピーを返します。
func (d *Dashboard) Clone() *Dashboard {
	if d == nil {
		return nil
	}
	c := *d
	c.KPIs.NationalityCount = clonePtr(d.KPIs.NationalityCount)
	c.KPIs.ProbationPassRate = clonePtr(d.KPIs.ProbationPassRate)
	c.KPIs.YoYGrowthRate = clonePtr(d.KPIs.YoYGrowthRate)
	c.Cohorts = cloneSlice(d.Cohorts)
	c.Managers = cloneSlice(d.Managers)
	c.Departments = cloneSlice(d.Departments)
	c.Vendors = cloneSlice(d.Vendors)
	c.Regrettable.RecordIDs = cloneSlice(d.Regrettable.RecordIDs)
	c.HiringTrend = cloneSlice(d.HiringTrend)
	c.ExitTrend = cloneSlice(d.ExitTrend)
	c.HireExitRatio = cloneSlice(d.HireExitRatio)
	for i := range c.HireExitRatio {
		c.HireExitRatio[i].Ratio = clonePtr(c.HireExitRatio[i].Ratio)
	}
	c.TenureByDept = cloneSlice(d.TenureByDept)
	c.EarlyLeavers.Reasons = cloneSlice(d.EarlyLeavers.Reasons)
	if d.PositionChanges != nil {
		pc := *d.PositionChanges
		pc.ByDepartment = cloneSlice(pc.ByDepartment)
		c.PositionChanges = &pc
	}
	c.RollingTurnover.Monthly = cloneSlice(d.RollingTurnover.Monthly)
	c.RollingTurnover.Quarterly = cloneSlice(d.RollingTurnover.Quarterly)
	c.ExitReasons = cloneSlice(d.ExitReasons)
	return &c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
