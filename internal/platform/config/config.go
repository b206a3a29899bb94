package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// SourceSpreadsheet は台帳ファイルを読み込み元とする設定値です。
	SourceSpreadsheet = "spreadsheet"
	// SourcePostgres は employee_records テーブルを読み込み元とする設定値です。
	SourcePostgres = "postgres"

	// CacheMemory はプロセス内のダッシュボードキャッシュです。
	CacheMemory = "memory"
	// CacheRedis は Redis を使うダッシュボードキャッシュです。
	CacheRedis = "redis"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig はロガーの設定です。format が console の場合は開発向けの出力になります。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig は社員台帳の読み込み元です。
type SourceConfig struct {
	Kind  string `yaml:"kind"`
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// CacheConfig はダッシュボードキャッシュの設定です。
type CacheConfig struct {
	Kind     string        `yaml:"kind"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"-"`
	TTLRaw   string        `yaml:"ttl"`
}

// PipelineConfig は集計の基準日などパイプライン全体の設定です。
type PipelineConfig struct {
	AsOf    *time.Time `yaml:"-"`
	AsOfRaw string     `yaml:"as_of"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	c.Log.normalize()

	if err := c.Source.validateAndNormalize(); err != nil {
		return err
	}

	if c.Source.Kind == SourcePostgres {
		db := &c.Database
		if err := db.validateAndNormalize(); err != nil {
			return err
		}
	}

	if err := c.Cache.validateAndNormalize(); err != nil {
		return err
	}

	return c.Pipeline.validateAndNormalize()
}

func (l *LogConfig) normalize() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

func (s *SourceConfig) validateAndNormalize() error {
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
	if s.Kind == "" {
		s.Kind = SourceSpreadsheet
	}
	switch s.Kind {
	case SourceSpreadsheet:
		if s.Path == "" {
			return fmt.Errorf("config: source.path must be set for a spreadsheet source")
		}
	case SourcePostgres:
	default:
		return fmt.Errorf("config: source.kind %q is not supported", s.Kind)
	}
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (c *CacheConfig) validateAndNormalize() error {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	if c.Kind == "" {
		c.Kind = CacheMemory
	}
	switch c.Kind {
	case CacheMemory:
	case CacheRedis:
		if c.Addr == "" {
			return fmt.Errorf("config: cache.addr must be set for a redis cache")
		}
		if c.Prefix == "" {
			c.Prefix = "hr-analytics:dashboard:"
		}
	default:
		return fmt.Errorf("config: cache.kind %q is not supported", c.Kind)
	}

	ttl, err := parseDurationAllowEmpty(c.TTLRaw)
	if err != nil {
		return fmt.Errorf("config: cache.ttl: %w", err)
	}
	c.TTL = ttl
	return nil
}

func (p *PipelineConfig) validateAndNormalize() error {
	if p.AsOfRaw == "" {
		p.AsOf = nil
		return nil
	}
	asOf, err := time.Parse("2006-01-02", p.AsOfRaw)
	if err != nil {
		return fmt.Errorf("config: pipeline.as_of: %w", err)
	}
	p.AsOf = &asOf
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
