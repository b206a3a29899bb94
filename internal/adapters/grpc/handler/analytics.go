package handler

import (
	"context"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AnalyticsHandler は AnalyticsService の gRPC 実装です。
type AnalyticsHandler struct {
	svc roster.UseCase
}

var _ AnalyticsServiceServer = (*AnalyticsHandler)(nil)

// NewAnalyticsHandler は AnalyticsHandler を生成します。
func NewAnalyticsHandler(svc roster.UseCase) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// GetDashboard は絞り込み後の集計結果を返します。
func (h *AnalyticsHandler) GetDashboard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	filter, err := filterFrom(structField(req, "filter"))
	if err != nil {
		return nil, err
	}
	asOf, err := optionalDate(req, "as_of")
	if err != nil {
		return nil, err
	}

	d, err := h.svc.Dashboard(ctx, roster.DashboardInput{Filter: filter, AsOf: asOf})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(d)
}

// ListRecords は算出済みのレコードと取り込み時の不備を返します。
func (h *AnalyticsHandler) ListRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	filter, err := filterFrom(structField(req, "filter"))
	if err != nil {
		return nil, err
	}
	asOf, err := optionalDate(req, "as_of")
	if err != nil {
		return nil, err
	}

	res, err := h.svc.ListRecords(ctx, roster.ListRecordsInput{
		Filter: filter,
		Query:  stringField(req, "query"),
		AsOf:   asOf,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	records := make([]any, 0, res.Table.Len())
	for _, r := range res.Table.Records {
		records = append(records, derivedPayload(r))
	}
	return encode(map[string]any{
		"as_of":    res.Table.AsOf.Format(dateLayout),
		"records":  records,
		"indices":  res.Indices,
		"rejected": defectsPayload(res.Rejected),
		"defects":  defectsPayload(res.Defects),
	})
}

// ImportRecords はアップロードされた行でテーブルを置き換えます。
func (h *AnalyticsHandler) ImportRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	values := req.GetFields()["rows"].GetListValue().GetValues()
	rows := make([]roster.RawRow, 0, len(values))
	for i, v := range values {
		row := v.GetStructValue()
		if row == nil {
			return nil, status.Errorf(codes.InvalidArgument, "rows[%d] must be an object", i)
		}
		rows = append(rows, rawRowFrom(row))
	}

	result, err := h.svc.Import(ctx, rows)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{
		"records":       result.Table.Len(),
		"rejected_rows": result.RejectedRows(),
		"rejected":      defectsPayload(result.Rejected),
		"defects":       defectsPayload(result.Defects),
	})
}

// AddRecord はレコードを追加します。ID を省略した場合は採番されます。
func (h *AnalyticsHandler) AddRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	payload := structField(req, "record")
	if payload == nil {
		return nil, status.Error(codes.InvalidArgument, "record is required")
	}

	draft, err := roster.ParseRecord(rawRowFrom(payload))
	if err != nil {
		return nil, toStatusError(err)
	}

	added, err := h.svc.AddRecord(ctx, draft)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"record": recordPayload(*added)})
}

// UpdateRecord は ID で指定したレコードの一部の項目を更新します。
func (h *AnalyticsHandler) UpdateRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	changes, err := roster.ParseChanges(rawRowFrom(structField(req, "changes")))
	if err != nil {
		return nil, toStatusError(err)
	}

	updated, err := h.svc.UpdateRecord(ctx, roster.UpdateRecordInput{ID: id, Changes: changes})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"record": recordPayload(*updated)})
}

// DeleteRecord はレコードを削除します。confirmed が true でない場合は FailedPrecondition を返します。
func (h *AnalyticsHandler) DeleteRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	if err := h.svc.DeleteRecord(ctx, roster.DeleteRecordInput{ID: id, Confirmed: boolField(req, "confirmed")}); err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"id": id, "deleted": true})
}
