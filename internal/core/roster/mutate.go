package roster

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDGenerator は新規レコードの代理キーを生成します。
type IDGenerator func() string

// NewRandomID は UUID v4 の代理キーを返します。
func NewRandomID() string {
	return uuid.NewString()
}

// Changes はレコード更新時の入力です。nil のフィールドは変更しません。
// 日付は *Set が true の場合のみ反映し、その際 nil は値の消去を意味します。
type Changes struct {
	FullName             *string
	Gender               *Gender
	BirthDate            *time.Time
	BirthDateSet         bool
	Nationality          *string
	Department           *string
	Position             *string
	PositionAfterJoining *string
	EmploymentType       *string
	Vendor               *string
	Status               *Status
	JoinDate             *time.Time
	JoinDateSet          bool
	ExitDate             *time.Time
	ExitDateSet          bool
	ProbationEndDate     *time.Time
	ProbationEndDateSet  bool
	ExitType             *ExitType
	ExitReasonCategory   *string
	ExitReasonDetail     *string
	ManagerID            *string
}

// Add は検証済みの下書きを末尾に追加した新しいテーブルを返します。検証に失敗した場合は入力をそのまま残します。
func Add(t *Table, draft Record, newID IDGenerator) (*Table, error) {
	rec := prepare(draft)

	verr := validateRecord(rec)
	if rec.ID != "" {
		id, err := uuid.Parse(rec.ID)
		switch {
		case err != nil:
			verr.add(FieldRecordID, "must be a UUID")
		case t.IndexOf(id.String()) >= 0:
			verr.add(FieldRecordID, "already exists")
		default:
			rec.ID = id.String()
		}
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	if rec.ID == "" {
		if newID == nil {
			newID = NewRandomID
		}
		rec.ID = newID()
	}

	out := t.Clone()
	markColumns(out.Columns, rec)
	out.Records = append(out.Records, rec)
	return out, nil
}

// Update は index のレコードに変更を適用し、レコード全体を再検証した新しいテーブルを返します。
// index が範囲外の場合は呼び出し側の誤りとして panic します。
func Update(t *Table, index int, c Changes) (*Table, error) {
	mustIndex(t, index)

	rec := applyChanges(t.Records[index].Clone(), c)
	rec = prepare(rec)
	if err := validateRecord(rec).errOrNil(); err != nil {
		return nil, err
	}

	out := t.Clone()
	markColumns(out.Columns, rec)
	out.Records[index] = rec
	return out, nil
}

// Delete は index のレコードを除いた新しいテーブルを返します。confirmed が false の場合は ErrConfirmationRequired を返します。
// index が範囲外の場合は呼び出し側の誤りとして panic します。
func Delete(t *Table, index int, confirmed bool) (*Table, error) {
	mustIndex(t, index)
	if !confirmed {
		return nil, ErrConfirmationRequired
	}

	out := t.Clone()
	out.Records = append(out.Records[:index], out.Records[index+1:]...)
	return out, nil
}

// Validate はレコード単体を必須項目と状態整合性の規則で検証します。
func Validate(r Record) error {
	return validateRecord(prepare(r)).errOrNil()
}

func validateRecord(r Record) *ValidationError {
	verr := &ValidationError{}
	for _, f := range requiredFields {
		if r.Value(f) == "" {
			verr.add(f, "is required")
		}
	}
	if r.Status != "" && !r.Status.IsCanonical() {
		verr.add(FieldStatus, fmt.Sprintf("must be %s or %s", StatusActive, StatusDeparted))
	}
	for _, fe := range checkInvariants(r) {
		verr.add(fe.Field, fe.Reason)
	}
	return verr
}

func mustIndex(t *Table, index int) {
	if index < 0 || index >= t.Len() {
		panic(fmt.Sprintf("roster: index %d out of range [0,%d)", index, t.Len()))
	}
}

// prepare は文字列の前後空白を除き、日付と列挙値を正規化します。
func prepare(r Record) Record {
	r = r.Clone()
	r.ID = strings.TrimSpace(r.ID)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Gender = Gender(strings.TrimSpace(string(r.Gender)))
	r.Nationality = strings.TrimSpace(r.Nationality)
	r.Department = strings.TrimSpace(r.Department)
	r.Position = strings.TrimSpace(r.Position)
	r.PositionAfterJoining = strings.TrimSpace(r.PositionAfterJoining)
	r.EmploymentType = strings.TrimSpace(r.EmploymentType)
	r.Vendor = strings.TrimSpace(r.Vendor)
	r.Status = Status(strings.TrimSpace(string(r.Status)))
	r.ExitType = ExitType(strings.TrimSpace(string(r.ExitType)))
	r.ExitReasonCategory = strings.TrimSpace(r.ExitReasonCategory)
	r.ExitReasonDetail = strings.TrimSpace(r.ExitReasonDetail)
	r.ManagerID = strings.TrimSpace(r.ManagerID)
	r.BirthDate = normalizeDate(r.BirthDate)
	r.JoinDate = normalizeDate(r.JoinDate)
	r.ExitDate = normalizeDate(r.ExitDate)
	r.ProbationEndDate = normalizeDate(r.ProbationEndDate)
	canonicalizeEnums(&r)
	return r
}

func applyChanges(r Record, c Changes) Record {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&r.FullName, c.FullName)
	setString(&r.Nationality, c.Nationality)
	setString(&r.Department, c.Department)
	setString(&r.Position, c.Position)
	setString(&r.PositionAfterJoining, c.PositionAfterJoining)
	setString(&r.EmploymentType, c.EmploymentType)
	setString(&r.Vendor, c.Vendor)
	setString(&r.ExitReasonCategory, c.ExitReasonCategory)
	setString(&r.ExitReasonDetail, c.ExitReasonDetail)
	setString(&r.ManagerID, c.ManagerID)
	if c.Gender != nil {
		r.Gender = *c.Gender
	}
	if c.Status != nil {
		r.Status = *c.Status
	}
	if c.ExitType != nil {
		r.ExitType = *c.ExitType
	}
	if c.BirthDateSet {
		r.BirthDate = cloneTime(c.BirthDate)
	}
	if c.JoinDateSet {
		r.JoinDate = cloneTime(c.JoinDate)
	}
	if c.ExitDateSet {
		r.ExitDate = cloneTime(c.ExitDate)
	}
	if c.ProbationEndDateSet {
		r.ProbationEndDate = cloneTime(c.ProbationEndDate)
	}
	return r
}

func markColumns(cols ColumnSet, r Record) {
	for _, f := range CanonicalFields {
		if r.Value(f) != "" {
			cols[f] = true
		}
	}
}
