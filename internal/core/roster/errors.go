package roster

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation           = errors.New("roster: validation failed")
	ErrConfirmationRequired = errors.New("roster: deletion requires confirmation")
	ErrRecordNotFound       = errors.New("roster: record not found")
)

// DefectKind は行単位の不備の種類です。
type DefectKind string

const (
	DefectMissingRequired   DefectKind = "missing_required"
	DefectUnparseable       DefectKind = "unparseable"
	DefectNonCanonical      DefectKind = "non_canonical"
	DefectInvariantViolated DefectKind = "invariant_violated"
	DefectDuplicateColumn   DefectKind = "duplicate_column"
	DefectDuplicateID       DefectKind = "duplicate_id"
)

// RowDefect は入力行の不備を表します。Row は入力の 0 始まりの位置です。
type RowDefect struct {
	Row    int
	Field  Field
	Kind   DefectKind
	Value  string
	Reason string
}

func (d RowDefect) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "row %d: %s", d.Row, d.Kind)
	if d.Field != "" {
		fmt.Fprintf(&b, " %q", d.Field)
	}
	if d.Value != "" {
		fmt.Fprintf(&b, " value=%q", d.Value)
	}
	if d.Reason != "" {
		b.WriteString(": ")
		b.WriteString(d.Reason)
	}
	return b.String()
}

// FieldError はフィールド単位の検証エラーです。
type FieldError struct {
	Field  Field
	Reason string
}

// ValidationError はレコード検証の失敗をフィールドごとに列挙します。
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "roster: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HasField は指定フィールドのエラーを含むかを返します。
func (e *ValidationError) HasField(f Field) bool {
	for _, fe := range e.Fields {
		if fe.Field == f {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(f Field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: f, Reason: reason})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
