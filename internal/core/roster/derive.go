package roster

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	daysPerMonth = 30.44
	daysPerYear  = 365.25
)

// DefaultEmploymentType は雇用形態が未入力の場合の値です。
const DefaultEmploymentType = "Full-time"

var employmentTypeAliases = map[string]string{
	"fulltime":   "Full-time",
	"parttime":   "Part-time",
	"freelancer": "Freelancer",
	"freelance":  "Freelancer",
	"contract":   "Contract",
	"contractor": "Contract",
	"intern":     "Intern",
	"internship": "Intern",
}

// DerivedRecord は算出フィールドを付与したレコードです。nil は「不明」を表します。
type DerivedRecord struct {
	Record
	Age            *float64
	TenureMonths   *float64
	JoinYear       *int
	JoinMonth      string
	JoinQuarter    string
	ExitYear       *int
	ExitMonth      string
	EmploymentKind string
	Probation      ProbationStatus
}

// DerivedTable は基準日 AsOf で算出したテーブルです。
type DerivedTable struct {
	Records      []DerivedRecord
	Columns      ColumnSet
	ExtraColumns []string
	AsOf         time.Time
}

// Len はレコード数を返します。
func (t *DerivedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Derive は正規化済みテーブルから算出フィールドを計算します。入力は変更しません。
func Derive(t *Table, asOf time.Time) *DerivedTable {
	day := *normalizeDate(&asOf)
	out := &DerivedTable{AsOf: day, Columns: ColumnSet{}}
	if t == nil {
		return out
	}
	out.Columns = t.Columns.Clone()
	out.ExtraColumns = append([]string(nil), t.ExtraColumns...)
	out.Records = make([]DerivedRecord, 0, len(t.Records))
	for _, r := range t.Records {
		out.Records = append(out.Records, deriveRecord(r.Clone(), day))
	}
	return out
}

func deriveRecord(r Record, asOf time.Time) DerivedRecord {
	d := DerivedRecord{
		Record:         r,
		Age:            age(r.BirthDate, asOf),
		TenureMonths:   tenure(r, asOf),
		EmploymentKind: NormalizeEmploymentType(r.EmploymentType),
		Probation:      probationStatus(r, asOf),
	}
	if r.JoinDate != nil {
		y := r.JoinDate.Year()
		d.JoinYear = &y
		d.JoinMonth = r.JoinDate.Format("2006-01")
		d.JoinQuarter = fmt.Sprintf("%dQ%d", y, (int(r.JoinDate.Month())-1)/3+1)
	}
	if r.ExitDate != nil {
		y := r.ExitDate.Year()
		d.ExitYear = &y
		d.ExitMonth = r.ExitDate.Format("2006-01")
	}
	return d
}

func daysBetween(from, to time.Time) float64 {
	return math.Round(to.Sub(from).Hours() / 24)
}

func age(birth *time.Time, asOf time.Time) *float64 {
	if birth == nil {
		return nil
	}
	days := daysBetween(*birth, asOf)
	if days < 0 {
		return nil
	}
	v := days / daysPerYear
	return &v
}

func tenure(r Record, asOf time.Time) *float64 {
	if r.JoinDate == nil {
		return nil
	}
	end := asOf
	if r.Status == StatusDeparted {
		if r.ExitDate == nil {
			return nil
		}
		if r.ExitDate.Before(asOf) {
			end = *r.ExitDate
		}
	}
	days := daysBetween(*r.JoinDate, end)
	if days < 0 {
		days = 0
	}
	v := days / daysPerMonth
	return &v
}

func probationStatus(r Record, asOf time.Time) ProbationStatus {
	if r.ProbationEndDate == nil {
		return ProbationNoData
	}
	end := *r.ProbationEndDate
	switch r.Status {
	case StatusActive:
		if !end.After(asOf) {
			return ProbationCompleted
		}
		return ProbationInProgress
	case StatusDeparted:
		if r.ExitDate == nil {
			return ProbationNoData
		}
		exit := *r.ExitDate
		if _, failure := probationFailureReasons[r.ExitReasonCategory]; failure && !exit.After(end) {
			return ProbationFailed
		}
		if !end.After(exit) {
			return ProbationCompletedBeforeExit
		}
		return ProbationLeftDuringProbation
	default:
		return ProbationNoData
	}
}

// NormalizeEmploymentType は雇用形態の表記揺れを揃えます。未入力は Full-time、未知の値はそのまま返します。
func NormalizeEmploymentType(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultEmploymentType
	}
	key := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(trimmed))
	if v, ok := employmentTypeAliases[key]; ok {
		return v
	}
	return trimmed
}

// TruncatedAge は表示用に年齢を 0 方向へ丸めます。不明な場合は false を返します。
func (d DerivedRecord) TruncatedAge() (int, bool) {
	if d.Age == nil {
		return 0, false
	}
	return int(*d.Age), true
}
