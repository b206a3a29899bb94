package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/ogurasousui/hr-analytics/internal/platform/config"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const scanBatch = 200

// commander は Cache が使う Redis コマンドの部分集合です。*goredis.Client が満たします。
type commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Cache は集計結果を JSON で Redis に保存する roster.ViewCache の実装です。
type Cache struct {
	rdb    commander
	prefix string
	ttl    time.Duration
}

var _ roster.ViewCache = (*Cache)(nil)

// New は Cache を生成します。ttl が 0 の場合は期限を設定しません。
func New(rdb commander, prefix string, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Dial は Redis に接続して疎通確認を行います。
func Dial(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	if logger != nil {
		logger.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return rdb, nil
}

// Get はキャッシュ済みの集計結果を返します。
func (c *Cache) Get(ctx context.Context, key string) (*roster.Dashboard, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get: %w", err)
	}

	var d roster.Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false, fmt.Errorf("redis: decode dashboard: %w", err)
	}
	return &d, true, nil
}

// Set は集計結果を保存します。
func (c *Cache) Set(ctx context.Context, key string, d *roster.Dashboard) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis: encode dashboard: %w", err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

// Purge はプレフィックス配下のキーをすべて削除します。
func (c *Cache) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: delete: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
