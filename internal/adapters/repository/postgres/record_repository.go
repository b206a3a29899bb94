package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	pgdb "github.com/ogurasousui/hr-analytics/internal/platform/db/postgres"
)

const (
	uniqueViolationCode = "23505"
	notNullViolation    = "23502"
	checkViolationCode  = "23514"
)

const recordColumns = `id, full_name, gender, birth_date, nationality, department, position, position_after_joining,
               employment_type, vendor, status, join_date, exit_date, probation_end_date, exit_type,
               exit_reason_category, exit_reason, manager_id, extra`

// RecordRepository は PostgreSQL を社員テーブルの保存先とする roster.Store の実装です。
type RecordRepository struct {
	pool pgdb.Queryer
}

// NewRecordRepository は RecordRepository を生成します。
func NewRecordRepository(pool pgdb.Queryer) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// Load は保存済みのレコードを台帳の並び順で返します。値が空の任意項目は列ごと省略します。
// 正規化で除外された行はレコードの後ろに続けます。
func (r *RecordRepository) Load(ctx context.Context) ([]roster.RawRow, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+recordColumns+`
          FROM employee_records
         ORDER BY position_no ASC, id ASC
    `)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	out := make([]roster.RawRow, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, translatePgError(err)
		}
		out = append(out, rawRow(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgError(err)
	}

	held, err := r.loadHeld(ctx, exec)
	if err != nil {
		return nil, err
	}
	return append(out, held...), nil
}

func (r *RecordRepository) loadHeld(ctx context.Context, exec pgdb.Queryer) ([]roster.RawRow, error) {
	rows, err := exec.Query(ctx, `
        SELECT payload
          FROM employee_held_rows
         ORDER BY position_no ASC
    `)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var out []roster.RawRow
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, translatePgError(err)
		}
		row := roster.RawRow{}
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("postgres: decode held row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgError(err)
	}
	return out, nil
}

// Save はテーブル全体を置き換えます。除外行も元の値のまま保存します。
// 呼び出し側のトランザクション内で実行してください。
func (r *RecordRepository) Save(ctx context.Context, t *roster.Table) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	if _, err := exec.Exec(ctx, `DELETE FROM employee_records`); err != nil {
		return translatePgError(err)
	}
	if _, err := exec.Exec(ctx, `DELETE FROM employee_held_rows`); err != nil {
		return translatePgError(err)
	}
	if t == nil {
		return nil
	}

	for i, rec := range t.Records {
		extra, err := json.Marshal(nonNilExtra(rec.Extra))
		if err != nil {
			return fmt.Errorf("postgres: encode extra columns: %w", err)
		}
		if _, err := exec.Exec(ctx, `
        INSERT INTO employee_records (`+recordColumns+`, position_no)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
    `,
			rec.ID,
			rec.FullName,
			string(rec.Gender),
			nullableTime(rec.BirthDate),
			rec.Nationality,
			rec.Department,
			rec.Position,
			rec.PositionAfterJoining,
			rec.EmploymentType,
			rec.Vendor,
			string(rec.Status),
			nullableTime(rec.JoinDate),
			nullableTime(rec.ExitDate),
			nullableTime(rec.ProbationEndDate),
			string(rec.ExitType),
			rec.ExitReasonCategory,
			rec.ExitReasonDetail,
			rec.ManagerID,
			extra,
			i,
		); err != nil {
			return translatePgError(err)
		}
	}

	for i, raw := range t.Held {
		payload, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("postgres: encode held row: %w", err)
		}
		if _, err := exec.Exec(ctx, `
        INSERT INTO employee_held_rows (position_no, payload)
        VALUES ($1, $2)
    `, i, payload); err != nil {
			return translatePgError(err)
		}
	}
	return nil
}

func scanRecord(row pgx.Row) (roster.Record, error) {
	var (
		rec                             roster.Record
		gender, status, exitType        string
		birth, join, exit, probationEnd sql.NullTime
		extra                           []byte
	)

	if err := row.Scan(
		&rec.ID,
		&rec.FullName,
		&gender,
		&birth,
		&rec.Nationality,
		&rec.Department,
		&rec.Position,
		&rec.PositionAfterJoining,
		&rec.EmploymentType,
		&rec.Vendor,
		&status,
		&join,
		&exit,
		&probationEnd,
		&exitType,
		&rec.ExitReasonCategory,
		&rec.ExitReasonDetail,
		&rec.ManagerID,
		&extra,
	); err != nil {
		return roster.Record{}, err
	}

	rec.Gender = roster.Gender(gender)
	rec.Status = roster.Status(status)
	rec.ExitType = roster.ExitType(exitType)
	rec.BirthDate = dateFromNull(birth)
	rec.JoinDate = dateFromNull(join)
	rec.ExitDate = dateFromNull(exit)
	rec.ProbationEndDate = dateFromNull(probationEnd)

	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return roster.Record{}, fmt.Errorf("postgres: decode extra columns: %w", err)
		}
		if len(rec.Extra) == 0 {
			rec.Extra = nil
		}
	}
	return rec, nil
}

// rawRow はレコードを正規ヘッダーの生の行に戻します。必須項目と ID は空でも残します。
func rawRow(rec roster.Record) roster.RawRow {
	row := roster.RawRow{}
	for _, f := range roster.CanonicalFields {
		v := rec.Value(f)
		if v == "" && !alwaysLoaded(f) {
			continue
		}
		row[string(f)] = v
	}
	for k, v := range rec.Extra {
		row[k] = v
	}
	return row
}

func alwaysLoaded(f roster.Field) bool {
	switch f {
	case roster.FieldRecordID, roster.FieldFullName, roster.FieldGender, roster.FieldDepartment,
		roster.FieldPosition, roster.FieldStatus, roster.FieldJoinDate:
		return true
	default:
		return false
	}
}

func nonNilExtra(extra map[string]string) map[string]string {
	if extra == nil {
		return map[string]string{}
	}
	return extra
}

func dateFromNull(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &date
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return &roster.ValidationError{Fields: []roster.FieldError{{Field: roster.FieldRecordID, Reason: "already exists"}}}
		case notNullViolation, checkViolationCode:
			return fmt.Errorf("%w: %s", roster.ErrValidation, pgErr.Message)
		}
	}
	return fmt.Errorf("postgres: %w", err)
}
