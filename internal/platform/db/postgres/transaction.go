package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrReadOnlyTransaction は読み取り専用トランザクションの中で書き込みを始めた場合のエラーです。
var ErrReadOnlyTransaction = errors.New("postgres: read-write work inside a read-only transaction")

const (
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"

	// maxTxAttempts は直列化エラーで再試行する最大回数です。
	maxTxAttempts = 3
)

var (
	// ReadOnlyTxOptions は台帳の読み込みに使います。レコードと除外行は同じスナップショットから読まれます。
	ReadOnlyTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	// ReadWriteTxOptions はテーブルの置き換えに使います。同時に走った置き換えは片方が直列化エラーになります。
	ReadWriteTxOptions = pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
)

type txContextKey struct{}

type txState struct {
	tx       pgx.Tx
	readOnly bool
}

type txStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TransactionManager は roster.TransactionManager の pgx 実装です。
// 入れ子の呼び出しは外側のトランザクションを再利用し、直列化エラーとデッドロックは最初からやり直します。
type TransactionManager struct {
	pool     txStarter
	attempts int
}

// NewTransactionManager は TransactionManager を生成します。
func NewTransactionManager(pool txStarter) *TransactionManager {
	if pool == nil {
		return nil
	}
	return &TransactionManager{pool: pool, attempts: maxTxAttempts}
}

// WithinReadOnly は読み取り専用トランザクションで fn を実行します。
func (m *TransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if m == nil {
		return fn(ctx)
	}
	return m.within(ctx, ReadOnlyTxOptions, fn)
}

// WithinReadWrite は読み書きトランザクションで fn を実行します。fn は再試行で複数回呼ばれることがあります。
func (m *TransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if m == nil {
		return fn(ctx)
	}
	return m.within(ctx, ReadWriteTxOptions, fn)
}

func (m *TransactionManager) within(ctx context.Context, opts pgx.TxOptions, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("postgres: transaction function is required")
	}

	if st, ok := stateFromContext(ctx); ok {
		if st.readOnly && opts.AccessMode != pgx.ReadOnly {
			return ErrReadOnlyTransaction
		}
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err = m.runOnce(ctx, opts, fn)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("postgres: gave up after %d attempts: %w", m.attempts, err)
}

func (m *TransactionManager) runOnce(ctx context.Context, opts pgx.TxOptions, fn func(context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx)
		}
	}()

	txCtx := context.WithValue(ctx, txContextKey{}, txState{tx: tx, readOnly: opts.AccessMode == pgx.ReadOnly})
	if err := fn(txCtx); err != nil {
		done = true
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}

	done = true
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// retryable は最初からやり直せば成功しうるエラーかを判定します。
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailureCode || pgErr.Code == deadlockDetectedCode
}

func stateFromContext(ctx context.Context) (txState, bool) {
	if ctx == nil {
		return txState{}, false
	}
	st, ok := ctx.Value(txContextKey{}).(txState)
	return st, ok
}

// QueryerFromContext はコンテキストにトランザクションがあればそれを、無ければ fallback を返します。
func QueryerFromContext(ctx context.Context, fallback Queryer) Queryer {
	if st, ok := stateFromContext(ctx); ok {
		return st.tx
	}
	return fallback
}

// Queryer は pgx.Tx と pgxpool.Pool に共通するクエリ実行インターフェースです。
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
