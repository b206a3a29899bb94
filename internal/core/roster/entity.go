package roster

import (
	"strings"
	"time"
)

// Field は正規スキーマのフィールド名です。値はスプレッドシートの正規ヘッダーと一致します。
type Field string

const (
	FieldRecordID             Field = "Record ID"
	FieldFullName             Field = "Full Name"
	FieldGender               Field = "Gender"
	FieldBirthDate            Field = "Birthday Date"
	FieldNationality          Field = "Nationality"
	FieldDepartment           Field = "Department"
	FieldPosition             Field = "Position"
	FieldPositionAfterJoining Field = "Position After Joining"
	FieldEmploymentType       Field = "Employment Type"
	FieldVendor               Field = "Vendor"
	FieldStatus               Field = "Employee Status"
	FieldJoinDate             Field = "Join Date"
	FieldExitDate             Field = "Exit Date"
	FieldProbationEndDate     Field = "Probation Period End Date"
	FieldExitType             Field = "Exit Type"
	FieldExitReasonCategory   Field = "Exit Reason Category"
	FieldExitReasonDetail     Field = "Exit Reason"
	FieldManagerID            Field = "Direct Manager CRM while Resignation"
)

// CanonicalFields は正規スキーマの全フィールドを書き出し順に並べたものです。
var CanonicalFields = []Field{
	FieldRecordID,
	FieldFullName,
	FieldGender,
	FieldBirthDate,
	FieldNationality,
	FieldDepartment,
	FieldPosition,
	FieldPositionAfterJoining,
	FieldEmploymentType,
	FieldVendor,
	FieldStatus,
	FieldJoinDate,
	FieldExitDate,
	FieldProbationEndDate,
	FieldExitType,
	FieldExitReasonCategory,
	FieldExitReasonDetail,
	FieldManagerID,
}

var requiredFields = []Field{
	FieldFullName,
	FieldGender,
	FieldDepartment,
	FieldPosition,
	FieldStatus,
	FieldJoinDate,
}

// Gender は性別です。
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// IsCanonical は値が閉じた列挙に含まれるかを返します。
func (g Gender) IsCanonical() bool {
	return g == GenderMale || g == GenderFemale
}

// Status は在籍状態です。
type Status string

const (
	StatusActive   Status = "Active"
	StatusDeparted Status = "Departed"
)

func (s Status) IsCanonical() bool {
	return s == StatusActive || s == StatusDeparted
}

// ExitType は退職区分です。
type ExitType string

const (
	ExitTypeResigned   ExitType = "Resigned"
	ExitTypeTerminated ExitType = "Terminated"
	ExitTypeDropped    ExitType = "Dropped"
)

func (e ExitType) IsCanonical() bool {
	switch e {
	case ExitTypeResigned, ExitTypeTerminated, ExitTypeDropped:
		return true
	default:
		return false
	}
}

// Voluntary は本人都合の退職かを返します。
func (e ExitType) Voluntary() bool {
	return e == ExitTypeResigned || e == ExitTypeDropped
}

// ExitReasonCatalog は退職理由カテゴリの閉じた一覧です。
var ExitReasonCatalog = []string{
	"Career & Growth",
	"Compensation & Benefits",
	"Management & Leadership",
	"Work Environment",
	"Work-Life Balance",
	"Relocation",
	"Personal & Family",
	"Health",
	"Further Education",
	"Performance",
	"Failed Probation",
	"Training Fail",
	"Misconduct",
	"Contract End",
	"Other",
}

var probationFailureReasons = map[string]struct{}{
	"Failed Probation": {},
	"Training Fail":    {},
}

// IsCatalogExitReason は退職理由がカタログに含まれるかを返します。
func IsCatalogExitReason(reason string) bool {
	_, ok := canonicalExitReason(reason)
	return ok
}

func canonicalExitReason(reason string) (string, bool) {
	for _, c := range ExitReasonCatalog {
		if strings.EqualFold(c, reason) {
			return c, true
		}
	}
	return reason, false
}

// ProbationStatus は試用期間の判定結果です。
type ProbationStatus string

const (
	ProbationCompleted           ProbationStatus = "Completed"
	ProbationCompletedBeforeExit ProbationStatus = "Completed Before Exit"
	ProbationFailed              ProbationStatus = "Failed"
	ProbationLeftDuringProbation ProbationStatus = "Left During Probation"
	ProbationInProgress          ProbationStatus = "In Progress"
	ProbationNoData              ProbationStatus = "No Data"
)

// Passed は試用期間を満了したかを返します。
func (p ProbationStatus) Passed() bool {
	return p == ProbationCompleted || p == ProbationCompletedBeforeExit
}

// Record は社員レコードです。日付は UTC の 0 時に正規化され、nil は欠損を表します。
type Record struct {
	ID                   string
	FullName             string
	Gender               Gender
	BirthDate            *time.Time
	Nationality          string
	Department           string
	Position             string
	PositionAfterJoining string
	EmploymentType       string
	Vendor               string
	Status               Status
	JoinDate             *time.Time
	ExitDate             *time.Time
	ProbationEndDate     *time.Time
	ExitType             ExitType
	ExitReasonCategory   string
	ExitReasonDetail     string
	ManagerID            string
	// Extra は別名表に一致しなかった列をそのまま保持します。
	Extra map[string]string
}

// Clone はレコードのディープコピーを返します。
func (r Record) Clone() Record {
	c := r
	c.BirthDate = cloneTime(r.BirthDate)
	c.JoinDate = cloneTime(r.JoinDate)
	c.ExitDate = cloneTime(r.ExitDate)
	c.ProbationEndDate = cloneTime(r.ProbationEndDate)
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// ColumnSet は入力に存在した正規フィールドの集合です。
type ColumnSet map[Field]bool

// Has は列が入力に存在したかを返します。
func (c ColumnSet) Has(f Field) bool {
	return c[f]
}

// Clone は列集合のコピーを返します。
func (c ColumnSet) Clone() ColumnSet {
	out := make(ColumnSet, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Table は挿入順を保った社員レコードの並びです。氏名の重複は許容されます。
type Table struct {
	Records []Record
	Columns ColumnSet
	// ExtraColumns は未対応列のヘッダーを初出順に保持します。
	ExtraColumns []string
	// Held は正規化で除外された入力行です。変更を加えずに書き戻します。
	Held []RawRow
}

// Len はレコード数を返します。
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Clone はテーブルのディープコピーを返します。
func (t *Table) Clone() *Table {
	if t == nil {
		return &Table{Columns: ColumnSet{}}
	}
	out := &Table{
		Records:      make([]Record, len(t.Records)),
		Columns:      t.Columns.Clone(),
		ExtraColumns: append([]string(nil), t.ExtraColumns...),
	}
	for i, r := range t.Records {
		out.Records[i] = r.Clone()
	}
	if t.Held != nil {
		out.Held = make([]RawRow, len(t.Held))
		for i, row := range t.Held {
			out.Held[i] = row.clone()
		}
	}
	return out
}

// IndexOf は ID に一致するレコードの位置を返します。見つからない場合は -1 です。
func (t *Table) IndexOf(id string) int {
	if t == nil {
		return -1
	}
	for i, r := range t.Records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Search は氏名・ID・マネージャー ID の部分一致 (大文字小文字を区別しない) で位置を返します。
func (t *Table) Search(query string) []int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || t == nil {
		return nil
	}
	var hits []int
	for i, r := range t.Records {
		if strings.Contains(strings.ToLower(r.FullName), q) ||
			strings.Contains(strings.ToLower(r.ID), q) ||
			strings.Contains(strings.ToLower(r.ManagerID), q) {
			hits = append(hits, i)
		}
	}
	return hits
}

// RawRow は列名から生の値への写像です。値は string、数値、time.Time、nil を受け付けます。
type RawRow map[string]any

func (r RawRow) clone() RawRow {
	out := make(RawRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RawRows は正規形のテーブルを再正規化可能な生の行に戻します。除外された行は末尾にそのまま続きます。
func (t *Table) RawRows() []RawRow {
	if t == nil {
		return nil
	}
	rows := make([]RawRow, 0, len(t.Records)+len(t.Held))
	for _, r := range t.Records {
		row := RawRow{}
		for _, f := range CanonicalFields {
			if f == FieldRecordID || t.Columns.Has(f) {
				row[string(f)] = r.Value(f)
			}
		}
		for k, v := range r.Extra {
			row[k] = v
		}
		rows = append(rows, row)
	}
	for _, row := range t.Held {
		rows = append(rows, row.clone())
	}
	return rows
}

// Value はフィールドの値を文字列で返します。日付は YYYY-MM-DD、欠損は空文字列です。
func (r Record) Value(f Field) string {
	switch f {
	case FieldRecordID:
		return r.ID
	case FieldFullName:
		return r.FullName
	case FieldGender:
		return string(r.Gender)
	case FieldBirthDate:
		return formatDate(r.BirthDate)
	case FieldNationality:
		return r.Nationality
	case FieldDepartment:
		return r.Department
	case FieldPosition:
		return r.Position
	case FieldPositionAfterJoining:
		return r.PositionAfterJoining
	case FieldEmploymentType:
		return r.EmploymentType
	case FieldVendor:
		return r.Vendor
	case FieldStatus:
		return string(r.Status)
	case FieldJoinDate:
		return formatDate(r.JoinDate)
	case FieldExitDate:
		return formatDate(r.ExitDate)
	case FieldProbationEndDate:
		return formatDate(r.ProbationEndDate)
	case FieldExitType:
		return string(r.ExitType)
	case FieldExitReasonCategory:
		return r.ExitReasonCategory
	case FieldExitReasonDetail:
		return r.ExitReasonDetail
	case FieldManagerID:
		return r.ManagerID
	default:
		return ""
	}
}

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &normalized
}
