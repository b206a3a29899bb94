package roster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Store は社員テーブルの読み込み元であり、変更後のテーブルの書き戻し先です。
type Store interface {
	Load(ctx context.Context) ([]RawRow, error)
	Save(ctx context.Context, t *Table) error
}

// ViewCache は集計結果のキャッシュです。キーは入力内容のフィンガープリントを含みます。
type ViewCache interface {
	Get(ctx context.Context, key string) (*Dashboard, bool, error)
	Set(ctx context.Context, key string, d *Dashboard) error
	Purge(ctx context.Context) error
}

// Snapshot は正規化段の結果とその入力のフィンガープリントです。
type Snapshot struct {
	Fingerprint string
	Result      *NormalizeResult
}

// Service は正規化・算出・集計を段階的に実行し、入力が変わった段だけを再計算します。
// 変更系の操作は内部で直列化されます。
type Service struct {
	store  Store
	clock  Clock
	tx     TransactionManager
	views  ViewCache
	logger *zap.Logger
	asOf   *time.Time
	newID  IDGenerator

	mu      sync.Mutex
	current *Snapshot
}

// UseCase は社員分析ユースケースの公開インターフェースです。
type UseCase interface {
	Dashboard(ctx context.Context, in DashboardInput) (*Dashboard, error)
	ListRecords(ctx context.Context, in ListRecordsInput) (*ListRecordsResult, error)
	Import(ctx context.Context, rows []RawRow) (*NormalizeResult, error)
	AddRecord(ctx context.Context, draft Record) (*Record, error)
	UpdateRecord(ctx context.Context, in UpdateRecordInput) (*Record, error)
	DeleteRecord(ctx context.Context, in DeleteRecordInput) error
}

// Option は Service の任意設定です。
type Option func(*Service)

// WithViewCache は集計結果のキャッシュを差し替えます。
func WithViewCache(c ViewCache) Option {
	return func(s *Service) {
		if c != nil {
			s.views = c
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAsOf は基準日を固定します。未設定の場合は Clock の日付を使います。
func WithAsOf(t time.Time) Option {
	return func(s *Service) {
		s.asOf = normalizeDate(&t)
	}
}

// WithIDGenerator は新規レコードの ID 生成器を差し替えます。
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.newID = g
		}
	}
}

// NewService は Service を生成します。
func NewService(store Store, clock Clock, tx TransactionManager, opts ...Option) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	s := &Service{
		store:  store,
		clock:  clock,
		tx:     tx,
		views:  NewMemoryViewCache(),
		logger: zap.NewNop(),
		newID:  NewRandomID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DashboardInput は集計取得時の入力です。
type DashboardInput struct {
	Filter Filter
	AsOf   *time.Time
}

// ListRecordsInput はレコード一覧取得時の入力です。
type ListRecordsInput struct {
	Filter Filter
	Query  string
	AsOf   *time.Time
}

// ListRecordsResult はレコード一覧の結果です。Indices は正規化済みテーブル上の位置です。
type ListRecordsResult struct {
	Table    *DerivedTable
	Indices  []int
	Rejected []RowDefect
	Defects  []RowDefect
}

// UpdateRecordInput はレコード更新時の入力です。
type UpdateRecordInput struct {
	ID      string
	Changes Changes
}

// DeleteRecordInput はレコード削除時の入力です。
type DeleteRecordInput struct {
	ID        string
	Confirmed bool
}

// Dashboard は絞り込み後のテーブルの集計結果を返します。
func (s *Service) Dashboard(ctx context.Context, in DashboardInput) (*Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotLocked(ctx)
	if err != nil {
		return nil, err
	}
	asOf := s.resolveAsOf(in.AsOf)
	key := fmt.Sprintf("%s|%s|%s", snap.Fingerprint, asOf.Format(dateLayout), in.Filter.Key())

	if cached, ok, err := s.views.Get(ctx, key); err != nil {
		s.logger.Warn("roster: view cache read failed", zap.Error(err))
	} else if ok {
		s.logger.Debug("roster: view cache hit", zap.String("key", key))
		return cached, nil
	}

	derived := in.Filter.Apply(Derive(snap.Result.Table, asOf))
	dashboard := BuildDashboard(derived)
	if err := s.views.Set(ctx, key, dashboard); err != nil {
		s.logger.Warn("roster: view cache write failed", zap.Error(err))
	}
	return dashboard, nil
}

// ListRecords は算出済みのレコードを返します。Query は氏名・ID・マネージャー ID の部分一致です。
func (s *Service) ListRecords(ctx context.Context, in ListRecordsInput) (*ListRecordsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotLocked(ctx)
	if err != nil {
		return nil, err
	}

	table := snap.Result.Table
	derived := Derive(table, s.resolveAsOf(in.AsOf))

	indices := make([]int, 0, table.Len())
	if in.Query != "" {
		indices = append(indices, table.Search(in.Query)...)
	} else {
		for i := range table.Records {
			indices = append(indices, i)
		}
	}

	out := &DerivedTable{Columns: derived.Columns, ExtraColumns: derived.ExtraColumns, AsOf: derived.AsOf}
	kept := make([]int, 0, len(indices))
	for _, i := range indices {
		if in.Filter.matches(derived.Records[i]) {
			out.Records = append(out.Records, derived.Records[i])
			kept = append(kept, i)
		}
	}

	return &ListRecordsResult{
		Table:    out,
		Indices:  kept,
		Rejected: snap.Result.Rejected,
		Defects:  snap.Result.Defects,
	}, nil
}

// Import はアップロードされた行を正規化して保存し、以降の読み取りの入力を置き換えます。
// 不正行は除外され、結果に列挙されます。
func (s *Service) Import(ctx context.Context, rows []RawRow) (*NormalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := Normalize(rows)
	s.logResult("roster: upload normalized", len(rows), result)

	if err := s.saveLocked(ctx, result.Table); err != nil {
		return nil, err
	}
	return result, nil
}

// AddRecord はレコードを追加して保存します。
func (s *Service) AddRecord(ctx context.Context, draft Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotLocked(ctx)
	if err != nil {
		return nil, err
	}

	next, err := Add(snap.Result.Table, draft, s.newID)
	if err != nil {
		return nil, err
	}
	if err := s.saveLocked(ctx, next); err != nil {
		return nil, err
	}

	added := next.Records[len(next.Records)-1].Clone()
	s.logger.Info("roster: record added", zap.String("id", added.ID))
	return &added, nil
}

// UpdateRecord は ID で指定したレコードを更新して保存します。
func (s *Service) UpdateRecord(ctx context.Context, in UpdateRecordInput) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, idx, err := s.locateLocked(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	next, err := Update(snap.Result.Table, idx, in.Changes)
	if err != nil {
		return nil, err
	}
	if err := s.saveLocked(ctx, next); err != nil {
		return nil, err
	}

	updated := next.Records[idx].Clone()
	s.logger.Info("roster: record updated", zap.String("id", updated.ID))
	return &updated, nil
}

// DeleteRecord は ID で指定したレコードを削除して保存します。Confirmed が false の場合は何も変更しません。
func (s *Service) DeleteRecord(ctx context.Context, in DeleteRecordInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, idx, err := s.locateLocked(ctx, in.ID)
	if err != nil {
		return err
	}

	next, err := Delete(snap.Result.Table, idx, in.Confirmed)
	if err != nil {
		return err
	}
	if err := s.saveLocked(ctx, next); err != nil {
		return err
	}

	s.logger.Info("roster: record deleted", zap.String("id", in.ID))
	return nil
}

// Invalidate は正規化段と集計結果のキャッシュを破棄します。外部でソースが差し替えられた場合に使います。
func (s *Service) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidateLocked(ctx)
}

func (s *Service) locateLocked(ctx context.Context, id string) (*Snapshot, int, error) {
	snap, err := s.snapshotLocked(ctx)
	if err != nil {
		return nil, 0, err
	}
	idx := snap.Result.Table.IndexOf(id)
	if idx < 0 {
		return nil, 0, fmt.Errorf("id %q: %w", id, ErrRecordNotFound)
	}
	return snap, idx, nil
}

// snapshotLocked はソースを読み込み、フィンガープリントが前回と同じであれば正規化を省略します。
func (s *Service) snapshotLocked(ctx context.Context) (*Snapshot, error) {
	var rows []RawRow
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		loaded, err := s.store.Load(txCtx)
		rows = loaded
		return err
	}); err != nil {
		return nil, fmt.Errorf("roster: load source: %w", err)
	}

	fp := Fingerprint(rows)
	if s.current != nil && s.current.Fingerprint == fp {
		return s.current, nil
	}

	result := Normalize(rows)
	s.logResult("roster: source normalized", len(rows), result)
	s.current = &Snapshot{Fingerprint: fp, Result: result}
	return s.current, nil
}

func (s *Service) saveLocked(ctx context.Context, t *Table) error {
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		return s.store.Save(txCtx, t)
	}); err != nil {
		return fmt.Errorf("roster: save table: %w", err)
	}
	return s.invalidateLocked(ctx)
}

func (s *Service) invalidateLocked(ctx context.Context) error {
	s.current = nil
	if err := s.views.Purge(ctx); err != nil {
		return fmt.Errorf("roster: purge view cache: %w", err)
	}
	return nil
}

func (s *Service) resolveAsOf(override *time.Time) time.Time {
	switch {
	case override != nil:
		return *normalizeDate(override)
	case s.asOf != nil:
		return *s.asOf
	default:
		now := s.clock.Now()
		return *normalizeDate(&now)
	}
}

func (s *Service) logResult(msg string, rows int, result *NormalizeResult) {
	s.logger.Info(msg,
		zap.Int("rows", rows),
		zap.Int("records", result.Table.Len()),
		zap.Int("rejected_rows", len(result.RejectedRows())),
		zap.Int("defects", len(result.Defects)),
	)
	for _, d := range result.Defects {
		s.logger.Debug("roster: row defect", zap.Stringer("defect", d))
	}
}

// Fingerprint は生の行の内容から SHA-256 のフィンガープリントを計算します。列の並び順には依存しません。
func Fingerprint(rows []RawRow) string {
	h := sha256.New()
	keys := make([]string, 0)
	for _, row := range rows {
		keys = keys[:0]
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "%s\x1f%s\x1e", k, stringify(row[k]))
		}
		h.Write([]byte{0x1d})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type memoryViewCache struct {
	mu      sync.RWMutex
	entries map[string]*Dashboard
}

// NewMemoryViewCache はプロセス内のキャッシュを返します。
func NewMemoryViewCache() ViewCache {
	return &memoryViewCache{entries: make(map[string]*Dashboard)}
}

func (c *memoryViewCache) Get(_ context.Context, key string) (*Dashboard, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

func (c *memoryViewCache) Set(_ context.Context, key string, d *Dashboard) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = d.Clone()
	return nil
}

func (c *memoryViewCache) Purge(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Dashboard)
	return nil
}
