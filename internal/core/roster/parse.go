package roster

import (
	"fmt"
	"time"
)

// ParseRecord は列名付きの値から下書きレコードを作ります。列名は別名表で解決し、未対応の列は Extra に入れます。
// 同じフィールドに複数の列がある場合は Normalize と同じ順で最初の空でない値を使います。
// 必須項目と整合性の検査は Add で行います。
func ParseRecord(row RawRow) (Record, error) {
	var rec Record
	verr := &ValidationError{}
	assigned := make(map[Field]bool)

	for _, b := range bindHeaders(row, nil) {
		v := row[b.key]
		s := stringify(v)
		if s == "" {
			continue
		}
		if b.field == "" {
			header := cleanHeader(b.key)
			if header == "" {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			if _, ok := rec.Extra[header]; !ok {
				rec.Extra[header] = s
			}
			continue
		}
		if assigned[b.field] {
			continue
		}
		assigned[b.field] = true

		if isDateField(b.field) {
			t, err := parseDateValue(v)
			if err != nil {
				verr.add(b.field, err.Error())
				continue
			}
			setDate(&rec, b.field, t)
			continue
		}
		setText(&rec, b.field, s)
	}

	canonicalizeEnums(&rec)
	return rec, verr.errOrNil()
}

// ParseChanges は列名付きの値から部分更新を作ります。含まれない列は変更しません。
// 日付列に空値を渡すと値を消去します。同じフィールドに複数の列がある場合は最初の列だけを使います。
func ParseChanges(row RawRow) (Changes, error) {
	var c Changes
	verr := &ValidationError{}
	seen := make(map[Field]bool)

	for _, b := range bindHeaders(row, nil) {
		v := row[b.key]
		if b.field == "" {
			verr.add(Field(cleanHeader(b.key)), "unknown field")
			continue
		}
		f := b.field
		if seen[f] {
			continue
		}
		seen[f] = true
		if f == FieldRecordID {
			verr.add(f, "cannot be changed")
			continue
		}

		if isDateField(f) {
			t, err := parseDateValue(v)
			if err != nil {
				verr.add(f, err.Error())
				continue
			}
			switch f {
			case FieldBirthDate:
				c.BirthDate, c.BirthDateSet = t, true
			case FieldJoinDate:
				c.JoinDate, c.JoinDateSet = t, true
			case FieldExitDate:
				c.ExitDate, c.ExitDateSet = t, true
			case FieldProbationEndDate:
				c.ProbationEndDate, c.ProbationEndDateSet = t, true
			}
			continue
		}

		s := stringify(v)
		canon := Record{Gender: Gender(s), Status: Status(s), ExitType: ExitType(s), ExitReasonCategory: s}
		canonicalizeEnums(&canon)
		switch f {
		case FieldFullName:
			c.FullName = &s
		case FieldGender:
			c.Gender = &canon.Gender
		case FieldNationality:
			c.Nationality = &s
		case FieldDepartment:
			c.Department = &s
		case FieldPosition:
			c.Position = &s
		case FieldPositionAfterJoining:
			c.PositionAfterJoining = &s
		case FieldEmploymentType:
			c.EmploymentType = &s
		case FieldVendor:
			c.Vendor = &s
		case FieldStatus:
			c.Status = &canon.Status
		case FieldExitType:
			c.ExitType = &canon.ExitType
		case FieldExitReasonCategory:
			c.ExitReasonCategory = &canon.ExitReasonCategory
		case FieldExitReasonDetail:
			c.ExitReasonDetail = &s
		case FieldManagerID:
			c.ManagerID = &s
		}
	}

	return c, verr.errOrNil()
}

// parseDateValue は空値を nil として扱い、解釈できない値をエラーにします。
func parseDateValue(v any) (*time.Time, error) {
	s := stringify(v)
	if s == "" {
		return nil, nil
	}
	t, ok := parseDate(v)
	if !ok {
		return nil, fmt.Errorf("not a recognised date: %q", s)
	}
	return t, nil
}

func isDateField(f Field) bool {
	switch f {
	case FieldBirthDate, FieldJoinDate, FieldExitDate, FieldProbationEndDate:
		return true
	default:
		return false
	}
}

func setDate(r *Record, f Field, t *time.Time) {
	switch f {
	case FieldBirthDate:
		r.BirthDate = t
	case FieldJoinDate:
		r.JoinDate = t
	case FieldExitDate:
		r.ExitDate = t
	case FieldProbationEndDate:
		r.ProbationEndDate = t
	}
}

func setText(r *Record, f Field, s string) {
	switch f {
	case FieldRecordID:
		r.ID = s
	case FieldFullName:
		r.FullName = s
	case FieldGender:
		r.Gender = Gender(s)
	case FieldNationality:
		r.Nationality = s
	case FieldDepartment:
		r.Department = s
	case FieldPosition:
		r.Position = s
	case FieldPositionAfterJoining:
		r.PositionAfterJoining = s
	case FieldEmploymentType:
		r.EmploymentType = s
	case FieldVendor:
		r.Vendor = s
	case FieldStatus:
		r.Status = Status(s)
	case FieldExitType:
		r.ExitType = ExitType(s)
	case FieldExitReasonCategory:
		r.ExitReasonCategory = s
	case FieldExitReasonDetail:
		r.ExitReasonDetail = s
	case FieldManagerID:
		r.ManagerID = s
	}
}
