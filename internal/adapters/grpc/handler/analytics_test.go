package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubAnalyticsUseCase struct {
	dashboardInput roster.DashboardInput
	dashboardOut   *roster.Dashboard
	dashboardErr   error

	listInput roster.ListRecordsInput
	listOut   *roster.ListRecordsResult

	importRows []roster.RawRow

	addInput roster.Record
	addErr   error

	updateInput roster.UpdateRecordInput
	updateErr   error

	deleteInput roster.DeleteRecordInput
	deleteErr   error
}

func (s *stubAnalyticsUseCase) Dashboard(ctx context.Context, in roster.DashboardInput) (*roster.Dashboard, error) {
	s.dashboardInput = in
	return s.dashboardOut, s.dashboardErr
}

func (s *stubAnalyticsUseCase) ListRecords(ctx context.Context, in roster.ListRecordsInput) (*roster.ListRecordsResult, error) {
	s.listInput = in
	return s.listOut, nil
}

func (s *stubAnalyticsUseCase) Import(ctx context.Context, rows []roster.RawRow) (*roster.NormalizeResult, error) {
	s.importRows = rows
	return roster.Normalize(rows), nil
}

func (s *stubAnalyticsUseCase) AddRecord(ctx context.Context, draft roster.Record) (*roster.Record, error) {
	s.addInput = draft
	if s.addErr != nil {
		return nil, s.addErr
	}
	draft.ID = "11111111-1111-1111-1111-111111111111"
	return &draft, nil
}

func (s *stubAnalyticsUseCase) UpdateRecord(ctx context.Context, in roster.UpdateRecordInput) (*roster.Record, error) {
	s.updateInput = in
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &roster.Record{ID: in.ID, FullName: "Updated"}, nil
}

func (s *stubAnalyticsUseCase) DeleteRecord(ctx context.Context, in roster.DeleteRecordInput) error {
	s.deleteInput = in
	return s.deleteErr
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("failed to build struct: %v", err)
	}
	return s
}

func TestAnalyticsHandler_GetDashboard(t *testing.T) {
	t.Parallel()

	stub := &stubAnalyticsUseCase{dashboardOut: &roster.Dashboard{
		Records: 3,
		KPIs:    roster.KPIs{Total: 3, Active: 2, Departed: 1, GenderRatio: "2:1"},
	}}
	h := NewAnalyticsHandler(stub)

	resp, err := h.GetDashboard(context.Background(), mustStruct(t, map[string]any{
		"as_of": "2024-06-30",
		"filter": map[string]any{
			"departments":    []any{"Sales", "Engineering"},
			"statuses":       []any{"Active"},
			"join_year_from": 2020,
			"join_year_to":   "2023",
		},
	}))
	if err != nil {
		t.Fatalf("GetDashboard returned error: %v", err)
	}

	in := stub.dashboardInput
	if in.AsOf == nil || !in.AsOf.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected as_of: %v", in.AsOf)
	}
	if len(in.Filter.Departments) != 2 || in.Filter.Statuses[0] != roster.StatusActive {
		t.Fatalf("unexpected filter: %+v", in.Filter)
	}
	if in.Filter.JoinYearFrom != 2020 || in.Filter.JoinYearTo != 2023 {
		t.Fatalf("unexpected join year range: %+v", in.Filter)
	}

	kpis := resp.GetFields()["kpis"].GetStructValue()
	if kpis.GetFields()["gender_ratio"].GetStringValue() != "2:1" {
		t.Fatalf("unexpected kpis payload: %v", kpis)
	}
	if resp.GetFields()["records"].GetNumberValue() != 3 {
		t.Fatalf("unexpected records count: %v", resp.GetFields()["records"])
	}
}

func TestAnalyticsHandler_GetDashboard_InvalidInput(t *testing.T) {
	t.Parallel()

	h := NewAnalyticsHandler(&stubAnalyticsUseCase{})

	cases := map[string]*structpb.Struct{
		"nil request": nil,
		"bad as_of":   mustStruct(t, map[string]any{"as_of": "30/06/2024"}),
		"bad year":    mustStruct(t, map[string]any{"filter": map[string]any{"join_year_from": "twenty"}}),
	}
	for name, req := range cases {
		if _, err := h.GetDashboard(context.Background(), req); status.Code(err) != codes.InvalidArgument {
			t.Fatalf("%s: expected InvalidArgument, got %v", name, err)
		}
	}
}

func TestAnalyticsHandler_ListRecords(t *testing.T) {
	t.Parallel()

	join := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	tenure := 17.0
	stub := &stubAnalyticsUseCase{listOut: &roster.ListRecordsResult{
		Table: &roster.DerivedTable{
			AsOf: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Records: []roster.DerivedRecord{{
				Record:       roster.Record{ID: "r-1", FullName: "Aiko Tanaka", JoinDate: &join, Extra: map[string]string{"Notes": "remote"}},
				TenureMonths: &tenure,
				JoinQuarter:  "2023Q1",
				Probation:    roster.ProbationNoData,
			}},
		},
		Indices: []int{4},
		Defects: []roster.RowDefect{{Row: 2, Field: roster.FieldGender, Kind: roster.DefectNonCanonical, Value: "X"}},
	}}
	h := NewAnalyticsHandler(stub)

	resp, err := h.ListRecords(context.Background(), mustStruct(t, map[string]any{"query": "aiko"}))
	if err != nil {
		t.Fatalf("ListRecords returned error: %v", err)
	}
	if stub.listInput.Query != "aiko" {
		t.Fatalf("expected query to be forwarded, got %q", stub.listInput.Query)
	}

	records := resp.GetFields()["records"].GetListValue().GetValues()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0].GetStructValue().GetFields()
	if rec["Full Name"].GetStringValue() != "Aiko Tanaka" || rec["Join Date"].GetStringValue() != "2023-01-01" {
		t.Fatalf("unexpected record payload: %v", rec)
	}
	if rec["Notes"].GetStringValue() != "remote" {
		t.Fatalf("expected extra column in payload: %v", rec)
	}
	derived := rec["derived"].GetStructValue().GetFields()
	if derived["tenure_months"].GetNumberValue() != 17 || derived["join_quarter"].GetStringValue() != "2023Q1" {
		t.Fatalf("unexpected derived payload: %v", derived)
	}
	if _, ok := derived["age"]; ok {
		t.Fatalf("unknown age must be omitted: %v", derived)
	}
	if resp.GetFields()["indices"].GetListValue().GetValues()[0].GetNumberValue() != 4 {
		t.Fatalf("unexpected indices: %v", resp.GetFields()["indices"])
	}
	defects := resp.GetFields()["defects"].GetListValue().GetValues()
	if len(defects) != 1 || defects[0].GetStructValue().GetFields()["kind"].GetStringValue() != "non_canonical" {
		t.Fatalf("unexpected defects: %v", defects)
	}
}

func TestAnalyticsHandler_ImportRecords(t *testing.T) {
	t.Parallel()

	stub := &stubAnalyticsUseCase{}
	h := NewAnalyticsHandler(stub)

	resp, err := h.ImportRecords(context.Background(), mustStruct(t, map[string]any{
		"rows": []any{
			map[string]any{"Full Name": "A", "Gender": "F", "Department": "Ops", "Position": "Lead", "Employee Status": "Active", "Join Date": "2022-01-01"},
			map[string]any{"Full Name": "B"},
		},
	}))
	if err != nil {
		t.Fatalf("ImportRecords returned error: %v", err)
	}
	if len(stub.importRows) != 2 {
		t.Fatalf("expected 2 rows forwarded, got %d", len(stub.importRows))
	}
	if resp.GetFields()["records"].GetNumberValue() != 1 {
		t.Fatalf("expected 1 imported record, got %v", resp.GetFields()["records"])
	}
	if rows := resp.GetFields()["rejected_rows"].GetListValue().GetValues(); len(rows) != 1 || rows[0].GetNumberValue() != 1 {
		t.Fatalf("unexpected rejected rows: %v", rows)
	}

	_, err = h.ImportRecords(context.Background(), mustStruct(t, map[string]any{"rows": []any{"not an object"}}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestAnalyticsHandler_AddRecord(t *testing.T) {
	t.Parallel()

	stub := &stubAnalyticsUseCase{}
	h := NewAnalyticsHandler(stub)

	resp, err := h.AddRecord(context.Background(), mustStruct(t, map[string]any{
		"record": map[string]any{
			"Full Name":       "Mai Nguyen",
			"Gender":          "f",
			"Department":      "Engineering",
			"Position":        "Engineer",
			"Employee Status": "Active",
			"Join Date":       "2024-02-01",
		},
	}))
	if err != nil {
		t.Fatalf("AddRecord returned error: %v", err)
	}
	if stub.addInput.Gender != roster.GenderFemale || stub.addInput.JoinDate == nil {
		t.Fatalf("unexpected draft: %+v", stub.addInput)
	}
	record := resp.GetFields()["record"].GetStructValue().GetFields()
	if record["Record ID"].GetStringValue() != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("unexpected record payload: %v", record)
	}

	if _, err := h.AddRecord(context.Background(), mustStruct(t, map[string]any{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing record, got %v", err)
	}

	_, err = h.AddRecord(context.Background(), mustStruct(t, map[string]any{"record": map[string]any{"Join Date": "soon"}}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for bad date, got %v", err)
	}

	stub.addErr = &roster.ValidationError{Fields: []roster.FieldError{{Field: roster.FieldFullName, Reason: "is required"}}}
	_, err = h.AddRecord(context.Background(), mustStruct(t, map[string]any{"record": map[string]any{"Gender": "M"}}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument from validation, got %v", err)
	}
}

func TestAnalyticsHandler_UpdateRecord(t *testing.T) {
	t.Parallel()

	stub := &stubAnalyticsUseCase{}
	h := NewAnalyticsHandler(stub)

	_, err := h.UpdateRecord(context.Background(), mustStruct(t, map[string]any{
		"id":      "r-1",
		"changes": map[string]any{"Department": "Sales", "Exit Date": nil},
	}))
	if err != nil {
		t.Fatalf("UpdateRecord returned error: %v", err)
	}
	c := stub.updateInput.Changes
	if stub.updateInput.ID != "r-1" || c.Department == nil || *c.Department != "Sales" || !c.ExitDateSet || c.ExitDate != nil {
		t.Fatalf("unexpected update input: %+v", stub.updateInput)
	}

	if _, err := h.UpdateRecord(context.Background(), mustStruct(t, map[string]any{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing id, got %v", err)
	}

	stub.updateErr = fmt.Errorf("id %q: %w", "r-9", roster.ErrRecordNotFound)
	_, err = h.UpdateRecord(context.Background(), mustStruct(t, map[string]any{"id": "r-9"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestAnalyticsHandler_DeleteRecord(t *testing.T) {
	t.Parallel()

	stub := &stubAnalyticsUseCase{deleteErr: roster.ErrConfirmationRequired}
	h := NewAnalyticsHandler(stub)

	_, err := h.DeleteRecord(context.Background(), mustStruct(t, map[string]any{"id": "r-1"}))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
	if stub.deleteInput.Confirmed {
		t.Fatalf("expected unconfirmed delete")
	}

	stub.deleteErr = nil
	resp, err := h.DeleteRecord(context.Background(), mustStruct(t, map[string]any{"id": "r-1", "confirmed": true}))
	if err != nil {
		t.Fatalf("DeleteRecord returned error: %v", err)
	}
	if !stub.deleteInput.Confirmed || !resp.GetFields()["deleted"].GetBoolValue() {
		t.Fatalf("unexpected delete result: %+v %v", stub.deleteInput, resp)
	}
}

func TestToStatusError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code codes.Code
	}{
		{nil, codes.OK},
		{fmt.Errorf("wrap: %w", roster.ErrValidation), codes.InvalidArgument},
		{roster.ErrConfirmationRequired, codes.FailedPrecondition},
		{roster.ErrRecordNotFound, codes.NotFound},
		{fmt.Errorf("load: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{errors.New("disk full"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(toStatusError(tc.err)); got != tc.code {
			t.Fatalf("toStatusError(%v) = %v, want %v", tc.err, got, tc.code)
		}
	}
}

func TestAnalyticsService_OverGRPC(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	stub := &stubAnalyticsUseCase{dashboardOut: &roster.Dashboard{Records: 7}}
	RegisterAnalyticsServiceServer(srv, NewAnalyticsHandler(stub))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	client := NewAnalyticsServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, "GetDashboard", mustStruct(t, map[string]any{}))
	if err != nil {
		t.Fatalf("GetDashboard over gRPC returned error: %v", err)
	}
	if resp.GetFields()["records"].GetNumberValue() != 7 {
		t.Fatalf("unexpected response: %v", resp)
	}

	stub.deleteErr = roster.ErrConfirmationRequired
	_, err = client.Call(ctx, "DeleteRecord", mustStruct(t, map[string]any{"id": "r-1"}))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition over the wire, got %v", err)
	}
}
