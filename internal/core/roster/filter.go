package roster

import (
	"fmt"
	"sort"
	"strings"
)

// Filter は集計前に適用する絞り込み条件です。空のスライスと 0 は「条件なし」を表します。
type Filter struct {
	Departments     []string
	Statuses        []Status
	Genders         []Gender
	EmploymentKinds []string
	Vendors         []string
	JoinYearFrom    int
	JoinYearTo      int
}

// IsZero は条件が一つも指定されていないかを返します。
func (f Filter) IsZero() bool {
	return len(f.Departments) == 0 && len(f.Statuses) == 0 && len(f.Genders) == 0 &&
		len(f.EmploymentKinds) == 0 && len(f.Vendors) == 0 && f.JoinYearFrom == 0 && f.JoinYearTo == 0
}

// Apply は条件に一致するレコードだけを持つテーブルを返します。入力は変更しません。
func (f Filter) Apply(t *DerivedTable) *DerivedTable {
	if t == nil {
		return nil
	}
	out := &DerivedTable{
		Columns:      t.Columns.Clone(),
		ExtraColumns: append([]string(nil), t.ExtraColumns...),
		AsOf:         t.AsOf,
		Records:      make([]DerivedRecord, 0, len(t.Records)),
	}
	for _, r := range t.Records {
		if f.matches(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

func (f Filter) matches(r DerivedRecord) bool {
	if len(f.Departments) > 0 && !containsFold(f.Departments, r.Department) {
		return false
	}
	if len(f.Statuses) > 0 && !containsFold(toStrings(f.Statuses), string(r.Status)) {
		return false
	}
	if len(f.Genders) > 0 && !containsFold(toStrings(f.Genders), string(r.Gender)) {
		return false
	}
	if len(f.EmploymentKinds) > 0 && !containsFold(f.EmploymentKinds, r.EmploymentKind) {
		return false
	}
	if len(f.Vendors) > 0 {
		vendor := r.Vendor
		if vendor == "" {
			vendor = directHireVendor
		}
		if !containsFold(f.Vendors, vendor) {
			return false
		}
	}
	if f.JoinYearFrom != 0 || f.JoinYearTo != 0 {
		if r.JoinYear == nil {
			return false
		}
		if f.JoinYearFrom != 0 && *r.JoinYear < f.JoinYearFrom {
			return false
		}
		if f.JoinYearTo != 0 && *r.JoinYear > f.JoinYearTo {
			return false
		}
	}
	return true
}

// Key はキャッシュキーに使う正規化済みの文字列表現です。条件の並び順には依存しません。
func (f Filter) Key() string {
	part := func(name string, values []string) string {
		norm := make([]string, 0, len(values))
		for _, v := range values {
			norm = append(norm, strings.ToLower(strings.TrimSpace(v)))
		}
		sort.Strings(norm)
		return name + "=" + strings.Join(norm, ",")
	}
	return strings.Join([]string{
		part("dept", f.Departments),
		part("status", toStrings(f.Statuses)),
		part("gender", toStrings(f.Genders)),
		part("type", f.EmploymentKinds),
		part("vendor", f.Vendors),
		fmt.Sprintf("years=%d-%d", f.JoinYearFrom, f.JoinYearTo),
	}, ";")
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
