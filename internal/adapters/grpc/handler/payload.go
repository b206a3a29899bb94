package handler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const dateLayout = "2006-01-02"

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func structField(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

func optionalDate(s *structpb.Struct, key string) (*time.Time, error) {
	raw := stringField(s, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be YYYY-MM-DD: %v", key, err)
	}
	return &t, nil
}

func stringList(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if str := v.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}

func intField(s *structpb.Struct, key string) (int, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int(kind.NumberValue), nil
	case *structpb.Value_StringValue:
		if kind.StringValue == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(kind.StringValue)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
}

// filterFrom はリクエストの filter オブジェクトを絞り込み条件に変換します。
func filterFrom(s *structpb.Struct) (roster.Filter, error) {
	if s == nil {
		return roster.Filter{}, nil
	}
	from, err := intField(s, "join_year_from")
	if err != nil {
		return roster.Filter{}, err
	}
	to, err := intField(s, "join_year_to")
	if err != nil {
		return roster.Filter{}, err
	}

	f := roster.Filter{
		Departments:     stringList(s, "departments"),
		EmploymentKinds: stringList(s, "employment_kinds"),
		Vendors:         stringList(s, "vendors"),
		JoinYearFrom:    from,
		JoinYearTo:      to,
	}
	for _, v := range stringList(s, "statuses") {
		f.Statuses = append(f.Statuses, roster.Status(v))
	}
	for _, v := range stringList(s, "genders") {
		f.Genders = append(f.Genders, roster.Gender(v))
	}
	return f, nil
}

func rawRowFrom(s *structpb.Struct) roster.RawRow {
	row := roster.RawRow{}
	for k, v := range s.AsMap() {
		row[k] = v
	}
	return row
}

func recordPayload(r roster.Record) map[string]any {
	out := make(map[string]any, len(roster.CanonicalFields)+len(r.Extra))
	for _, f := range roster.CanonicalFields {
		if v := r.Value(f); v != "" || f == roster.FieldRecordID {
			out[string(f)] = v
		}
	}
	for k, v := range r.Extra {
		out[k] = v
	}
	return out
}

func derivedPayload(d roster.DerivedRecord) map[string]any {
	out := recordPayload(d.Record)
	derived := map[string]any{
		"join_month":          d.JoinMonth,
		"join_quarter":        d.JoinQuarter,
		"exit_month":          d.ExitMonth,
		"employment_category": d.EmploymentKind,
		"probation_status":    string(d.Probation),
	}
	if d.Age != nil {
		derived["age"] = *d.Age
	}
	if d.TenureMonths != nil {
		derived["tenure_months"] = *d.TenureMonths
	}
	if d.JoinYear != nil {
		derived["join_year"] = *d.JoinYear
	}
	if d.ExitYear != nil {
		derived["exit_year"] = *d.ExitYear
	}
	out["derived"] = derived
	return out
}

func defectsPayload(defects []roster.RowDefect) []any {
	out := make([]any, 0, len(defects))
	for _, d := range defects {
		out = append(out, map[string]any{
			"row":    d.Row,
			"field":  string(d.Field),
			"kind":   string(d.Kind),
			"value":  d.Value,
			"reason": d.Reason,
		})
	}
	return out
}

// encode は JSON を経由して任意の値を Struct に変換します。
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
