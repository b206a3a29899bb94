package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ogurasousui/hr-analytics/internal/platform/config"
)

const (
	// ApplicationName は pg_stat_activity に表示される接続名です。
	ApplicationName = "hr-analytics"
	// sessionTimeZone は DATE 列を UTC の 0 時として読み書きするためのセッション設定です。
	sessionTimeZone = "UTC"
)

// ErrSchemaNotMigrated は台帳のテーブルが見つからない場合のエラーです。
var ErrSchemaNotMigrated = errors.New("postgres: schema is not migrated")

// ledgerTables は台帳の保存に使うテーブルです。
var ledgerTables = []string{"employee_records", "employee_held_rows"}

// BuildPoolConfig は database 設定から pgxpool.Config を構築します。DSN で指定された実行時パラメータが優先されます。
func BuildPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	params := poolCfg.ConnConfig.RuntimeParams
	for key, value := range map[string]string{
		"application_name": ApplicationName,
		"timezone":         sessionTimeZone,
	} {
		if _, ok := params[key]; !ok {
			params[key] = value
		}
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	return poolCfg, nil
}

// NewPool はプールを生成し、疎通と台帳テーブルの有無を確認します。
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := BuildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := CheckSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// CheckSchema は台帳のテーブルがすべて存在するかを確認します。足りない場合は ErrSchemaNotMigrated を返します。
func CheckSchema(ctx context.Context, q Queryer) error {
	var missing []string
	for _, table := range ledgerTables {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: look up table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrSchemaNotMigrated, strings.Join(missing, ", "))
	}
	return nil
}
