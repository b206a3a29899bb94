package roster

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// headerAliases は正規フィールドごとの別名一覧です。照合は cleanHeader 後に大文字小文字を無視して行います。
var headerAliases = map[Field][]string{
	FieldRecordID:             {"ID", "RecordID", "Record Id", "Employee ID"},
	FieldFullName:             {"Name", "FullName", "Employee Name", "Full name (English)"},
	FieldGender:               {"Sex"},
	FieldBirthDate:            {"Birthday", "Birth Date", "BirthDate", "Date of Birth", "DOB"},
	FieldNationality:          {"Citizenship"},
	FieldDepartment:           {"Dept", "Department Name"},
	FieldPosition:             {"Job Title", "Title"},
	FieldPositionAfterJoining: {"Position (After Joining)", "PositionAfterJoining"},
	FieldEmploymentType:       {"Type", "EmploymentType", "Contract Type"},
	FieldVendor:               {"Source", "Vendor/Source", "Hiring Source"},
	FieldStatus:               {"Status", "EmployeeStatus"},
	FieldJoinDate:             {"Join Date (yyyy/mm/dd)", "JoinDate", "Joining Date", "Hire Date", "Date Joined"},
	FieldExitDate:             {"Exit Date yyyy/mm/dd", "Exit Date (yyyy/mm/dd)", "ExitDate", "Leaving Date", "Termination Date"},
	FieldProbationEndDate:     {"Probation End Date", "ProbationEndDate", "Probation Period End"},
	FieldExitType:             {"ExitType", "Separation Type"},
	FieldExitReasonCategory:   {"Exit Reason Category List", "ExitReasonCategory", "Reason Category"},
	FieldExitReasonDetail:     {"Exit Reason Detail", "Exit Reason Details", "ExitReason"},
	FieldManagerID:            {"Manager CRM", "Direct Manager CRM", "Manager", "Manager ID"},
}

var headerIndex = buildHeaderIndex()

func buildHeaderIndex() map[string]Field {
	idx := make(map[string]Field)
	for _, f := range CanonicalFields {
		idx[headerKey(string(f))] = f
		for _, alias := range headerAliases[f] {
			idx[headerKey(alias)] = f
		}
	}
	return idx
}

// cleanHeader はヘッダー内の改行・タブを空白に置き換え、連続空白を詰めて前後を除去します。
func cleanHeader(raw string) string {
	replaced := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(raw)
	return strings.Join(strings.Fields(replaced), " ")
}

func headerKey(raw string) string {
	return strings.ToLower(cleanHeader(raw))
}

// ResolveHeader は生のヘッダーを正規フィールドに解決します。
func ResolveHeader(raw string) (Field, bool) {
	f, ok := headerIndex[headerKey(raw)]
	return f, ok
}

var recordNamespace = uuid.MustParse("6f1c2a8e-3b7d-4c55-9a0e-5d2f8b41c9e7")

const (
	// 1910-01-01 より前のシリアル値は西暦年などの誤読とみなします。
	minExcelSerial = 3654
	maxExcelSerial = 2958465
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/1/2",
	"2/1/2006",
	"2006-01-02 15:04:05",
	"2006/1/2 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// NormalizeResult は正規化の結果です。部分的成功が既定で、不正行は除外されて Rejected に列挙されます。
type NormalizeResult struct {
	Table    *Table
	Rejected []RowDefect
	Defects  []RowDefect
}

// RejectedRows は除外された入力行の位置を昇順で返します。
func (r *NormalizeResult) RejectedRows() []int {
	seen := make(map[int]struct{})
	var rows []int
	for _, d := range r.Rejected {
		if _, ok := seen[d.Row]; ok {
			continue
		}
		seen[d.Row] = struct{}{}
		rows = append(rows, d.Row)
	}
	sort.Ints(rows)
	return rows
}

type headerBinding struct {
	key   string
	field Field
	exact bool
}

// bindHeaders は行の列を正規フィールドに対応付けます。正規名と完全に一致する列を先に、残りは列名順に並べます。
// 未対応の列は field が空です。
func bindHeaders(raw RawRow, cache map[string]headerBinding) []headerBinding {
	bindings := make([]headerBinding, 0, len(raw))
	for key := range raw {
		b, ok := cache[key]
		if !ok {
			f, known := ResolveHeader(key)
			b = headerBinding{key: key, field: f, exact: known && cleanHeader(key) == string(f)}
			if !known {
				b.field = ""
			}
			if cache != nil {
				cache[key] = b
			}
		}
		bindings = append(bindings, b)
	}
	sort.Slice(bindings, func(a, b int) bool {
		if bindings[a].exact != bindings[b].exact {
			return bindings[a].exact
		}
		return bindings[a].key < bindings[b].key
	})
	return bindings
}

// SplitRawRow は生の行を正規フィールドの値と未対応列の値に分けます。
// 同じフィールドに複数の列がある場合は Normalize と同じ順で最初の空でない値を使います。
func SplitRawRow(raw RawRow) (map[Field]string, map[string]string) {
	fields := make(map[Field]string)
	extra := make(map[string]string)
	for _, b := range bindHeaders(raw, nil) {
		s := stringify(raw[b.key])
		if s == "" {
			continue
		}
		if b.field == "" {
			if header := cleanHeader(b.key); header != "" {
				if _, ok := extra[header]; !ok {
					extra[header] = s
				}
			}
			continue
		}
		if _, ok := fields[b.field]; !ok {
			fields[b.field] = s
		}
	}
	return fields, extra
}

// Normalize は生の行を正規スキーマのテーブルに変換します。
// 必須項目が欠けた行は Rejected に列挙し、元の値のまま Table.Held に残します。
func Normalize(rows []RawRow) *NormalizeResult {
	result := &NormalizeResult{Table: &Table{Columns: ColumnSet{FieldRecordID: true}}}
	extraSeen := make(map[string]struct{})
	seenIDs := make(map[string]struct{})

	bindingsCache := make(map[string]headerBinding)
	for i, raw := range rows {
		bindings := bindHeaders(raw, bindingsCache)

		values := make(map[Field]any)
		var extra map[string]string
		for _, b := range bindings {
			v := raw[b.key]
			if b.field == "" {
				header := cleanHeader(b.key)
				if header == "" {
					continue
				}
				if _, ok := extraSeen[header]; !ok {
					extraSeen[header] = struct{}{}
					result.Table.ExtraColumns = append(result.Table.ExtraColumns, header)
				}
				if s := stringify(v); s != "" {
					if extra == nil {
						extra = make(map[string]string)
					}
					extra[header] = s
				}
				continue
			}
			result.Table.Columns[b.field] = true
			existing, assigned := values[b.field]
			if !assigned || stringify(existing) == "" {
				values[b.field] = v
				continue
			}
			if s := stringify(v); s != "" && s != stringify(existing) {
				result.Defects = append(result.Defects, RowDefect{
					Row: i, Field: b.field, Kind: DefectDuplicateColumn, Value: s,
					Reason: fmt.Sprintf("column %q ignored in favour of an earlier column", cleanHeader(b.key)),
				})
			}
		}

		rec, rowDefects, missing := buildRecord(i, values)
		if len(missing) > 0 {
			for _, f := range missing {
				result.Rejected = append(result.Rejected, RowDefect{
					Row: i, Field: f, Kind: DefectMissingRequired, Reason: "required field is missing",
				})
			}
			result.Defects = append(result.Defects, rowDefects...)
			result.Table.Held = append(result.Table.Held, raw.clone())
			continue
		}
		rec.Extra = extra
		result.Defects = append(result.Defects, rowDefects...)
		if _, dup := seenIDs[rec.ID]; dup {
			result.Defects = append(result.Defects, RowDefect{
				Row: i, Field: FieldRecordID, Kind: DefectDuplicateID, Value: rec.ID,
				Reason: "id already used by an earlier row, a new id was assigned",
			})
			rec.ID = uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%d\x00duplicate\x00%s", i, rec.ID))).String()
		}
		seenIDs[rec.ID] = struct{}{}
		result.Table.Records = append(result.Table.Records, rec)
	}

	return result
}

func buildRecord(row int, values map[Field]any) (Record, []RowDefect, []Field) {
	var defects []RowDefect
	text := func(f Field) string {
		return stringify(values[f])
	}
	date := func(f Field) *time.Time {
		v, ok := values[f]
		if !ok {
			return nil
		}
		t, parsed := parseDate(v)
		if !parsed {
			if s := stringify(v); s != "" {
				defects = append(defects, RowDefect{Row: row, Field: f, Kind: DefectUnparseable, Value: s, Reason: "not a recognised date"})
			}
			return nil
		}
		return t
	}

	rec := Record{
		FullName:             text(FieldFullName),
		Gender:               Gender(text(FieldGender)),
		BirthDate:            date(FieldBirthDate),
		Nationality:          text(FieldNationality),
		Department:           text(FieldDepartment),
		Position:             text(FieldPosition),
		PositionAfterJoining: text(FieldPositionAfterJoining),
		EmploymentType:       text(FieldEmploymentType),
		Vendor:               text(FieldVendor),
		Status:               Status(text(FieldStatus)),
		JoinDate:             date(FieldJoinDate),
		ExitDate:             date(FieldExitDate),
		ProbationEndDate:     date(FieldProbationEndDate),
		ExitType:             ExitType(text(FieldExitType)),
		ExitReasonCategory:   text(FieldExitReasonCategory),
		ExitReasonDetail:     text(FieldExitReasonDetail),
		ManagerID:            text(FieldManagerID),
	}
	canonicalizeEnums(&rec)

	var missing []Field
	for _, f := range requiredFields {
		if rec.Value(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return rec, defects, missing
	}

	rec.ID = resolveRecordID(row, text(FieldRecordID), rec, &defects)

	if !rec.Gender.IsCanonical() {
		defects = append(defects, nonCanonical(row, FieldGender, string(rec.Gender)))
	}
	if !rec.Status.IsCanonical() {
		defects = append(defects, nonCanonical(row, FieldStatus, string(rec.Status)))
	}
	if rec.ExitType != "" && !rec.ExitType.IsCanonical() {
		defects = append(defects, nonCanonical(row, FieldExitType, string(rec.ExitType)))
	}
	if rec.ExitReasonCategory != "" && !IsCatalogExitReason(rec.ExitReasonCategory) {
		defects = append(defects, nonCanonical(row, FieldExitReasonCategory, rec.ExitReasonCategory))
	}
	for _, fe := range checkInvariants(rec) {
		defects = append(defects, RowDefect{Row: row, Field: fe.Field, Kind: DefectInvariantViolated, Reason: fe.Reason})
	}

	return rec, defects, nil
}

// canonicalizeEnums は大文字小文字違いのみの列挙値を正規の綴りに揃えます。それ以外の値はそのまま残します。
func canonicalizeEnums(r *Record) {
	for _, g := range []Gender{GenderMale, GenderFemale} {
		if strings.EqualFold(string(r.Gender), string(g)) {
			r.Gender = g
		}
	}
	for _, s := range []Status{StatusActive, StatusDeparted} {
		if strings.EqualFold(string(r.Status), string(s)) {
			r.Status = s
		}
	}
	for _, e := range []ExitType{ExitTypeResigned, ExitTypeTerminated, ExitTypeDropped} {
		if strings.EqualFold(string(r.ExitType), string(e)) {
			r.ExitType = e
		}
	}
	r.ExitReasonCategory, _ = canonicalExitReason(r.ExitReasonCategory)
}

func nonCanonical(row int, f Field, value string) RowDefect {
	return RowDefect{Row: row, Field: f, Kind: DefectNonCanonical, Value: value, Reason: "value outside the canonical enumeration"}
}

func resolveRecordID(row int, raw string, rec Record, defects *[]RowDefect) string {
	if raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id.String()
		}
		*defects = append(*defects, RowDefect{Row: row, Field: FieldRecordID, Kind: DefectUnparseable, Value: raw, Reason: "not a UUID, a new id was assigned"})
	}
	seed := fmt.Sprintf("%d\x00%s\x00%s\x00%s\x00%s", row, rec.FullName, rec.Department, rec.Position, formatDate(rec.JoinDate))
	return uuid.NewSHA1(recordNamespace, []byte(seed)).String()
}

// checkInvariants は在籍状態と退職情報の整合性を検査します。
func checkInvariants(r Record) []FieldError {
	var errs []FieldError
	switch r.Status {
	case StatusActive:
		if r.ExitDate != nil {
			errs = append(errs, FieldError{Field: FieldExitDate, Reason: "must be empty for an active record"})
		}
	case StatusDeparted:
		if r.ExitDate == nil {
			errs = append(errs, FieldError{Field: FieldExitDate, Reason: "required for a departed record"})
		}
		if r.ExitType == "" {
			errs = append(errs, FieldError{Field: FieldExitType, Reason: "required for a departed record"})
		}
		if r.ExitReasonCategory == "" {
			errs = append(errs, FieldError{Field: FieldExitReasonCategory, Reason: "required for a departed record"})
		}
	}
	if r.JoinDate != nil && r.ExitDate != nil && r.ExitDate.Before(*r.JoinDate) {
		errs = append(errs, FieldError{Field: FieldExitDate, Reason: "must not be before the join date"})
	}
	return errs
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.UTC().Format(dateLayout)
	case *time.Time:
		return formatDate(val)
	case float64:
		if math.IsNaN(val) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// parseDate は ISO、YYYY/MM/DD、DD/MM/YYYY、表計算ソフトのシリアル値を受け付けます。
func parseDate(v any) (*time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case time.Time:
		if val.IsZero() {
			return nil, false
		}
		return normalizeDate(&val), true
	case *time.Time:
		if val == nil || val.IsZero() {
			return nil, false
		}
		return normalizeDate(val), true
	case float64:
		return parseSerial(val)
	case int:
		return parseSerial(float64(val))
	case int64:
		return parseSerial(float64(val))
	}

	s := stringify(v)
	if s == "" {
		return nil, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return normalizeDate(&t), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return parseSerial(serial)
	}
	return nil, false
}

func parseSerial(serial float64) (*time.Time, bool) {
	if math.IsNaN(serial) || serial < minExcelSerial || serial > maxExcelSerial {
		return nil, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil, false
	}
	return normalizeDate(&t), true
}
