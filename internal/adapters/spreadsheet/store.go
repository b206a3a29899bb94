package spreadsheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"github.com/xuri/excelize/v2"
)

// Store はファイルを社員テーブルの読み込み元・書き戻し先とする roster.Store の実装です。
type Store struct {
	path   string
	sheet  string
	format Format
}

// NewStore は Store を生成します。形式は拡張子から判定します。
func NewStore(path, sheet string) (*Store, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, sheet: sheet, format: format}, nil
}

// Path はファイルパスを返します。
func (s *Store) Path() string {
	return s.path
}

// Load はファイル全体を読み込みます。
func (s *Store) Load(ctx context.Context) ([]roster.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	return ReadRows(f, s.format, s.sheet)
}

// Save はテーブルを一時ファイルに書き出してから置き換えます。xlsx は対象のシートだけを書き換え、
// 他のシートは残します。xls は書き戻しできません。
func (s *Store) Save(ctx context.Context, t *roster.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	switch s.format {
	case FormatXLSX:
		if err := s.writeWorkbook(&buf, t); err != nil {
			return err
		}
	case FormatCSV:
		if err := WriteTableCSV(&buf, t); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrReadOnlyFormat, s.format)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".roster-*"+filepath.Ext(s.path))
	if err != nil {
		return fmt.Errorf("spreadsheet: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("spreadsheet: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("spreadsheet: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("spreadsheet: replace %s: %w", s.path, err)
	}
	return nil
}

// writeWorkbook は既存のブックを開いて対象シートを書き換えます。ファイルが無い場合は新しいブックを作ります。
func (s *Store) writeWorkbook(w io.Writer, t *roster.Table) error {
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		sheet := s.sheet
		if sheet == "" {
			sheet = DefaultSheet
		}
		return WriteTableXLSX(w, t, sheet)
	}
	if err != nil {
		return fmt.Errorf("spreadsheet: open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	if err := UpdateWorkbook(f, s.sheet, t); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("spreadsheet: write xlsx: %w", err)
	}
	return nil
}
