package assets

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Asset はアセットのDB行。
type Asset struct {
	// ID はアセットの一意識別子。
	ID int64
	// Name はアセット名。
	Name string
	// Description はアセットの説明。
	Description string
	// FilePath はストレージ上のファイルパス。
	FilePath string
	// FileSize はファイルサイズ（バイト）。
	FileSize sql.NullInt64
	// MimeType はMIMEタイプ。
	MimeType sql.NullString
	// FileID は関連するファイルサービス上のファイルID。
	FileID sql.NullInt64
	// Metadata は任意のメタデータ（JSONオブジェクト）。
	Metadata json.RawMessage
	// Tags はタグ一覧。
	Tags []string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// Store はアセットのSQLite永続化層。
// 論理削除済みの行の除外はこの層に集約されており、
// すべての読み取りクエリがis_activeフィルタを持つ。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// assetColumns はSELECT句で取得するカラムの一覧。scanAssetの順序と同期すること。
const assetColumns = `id, name, description, file_path, file_size, mime_type, file_id, metadata, tags, created_at, updated_at`

// scanAsset は1行分のクエリ結果をAssetに変換する。
func scanAsset(row interface{ Scan(dest ...any) error }) (Asset, error) {
	var a Asset
	var metadata, tags string
	if err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.FilePath,
		&a.FileSize, &a.MimeType, &a.FileID,
		&metadata, &tags, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return Asset{}, err
	}
	a.Metadata = json.RawMessage(metadata)
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return Asset{}, fmt.Errorf("タグのデシリアライズに失敗: %w", err)
	}
	return a, nil
}

// CreateAssetParams はアセット作成のパラメータ。
type CreateAssetParams struct {
	Name        string
	Description string
	FilePath    string
	FileSize    sql.NullInt64
	MimeType    sql.NullString
	FileID      sql.NullInt64
	Metadata    json.RawMessage
	Tags        []string
}

// CreateAsset は新しいアセットを挿入し、採番されたIDを返す。
func (s *Store) CreateAsset(ctx context.Context, p CreateAssetParams) (int64, error) {
	metadata := "{}"
	if len(p.Metadata) > 0 {
		metadata = string(p.Metadata)
	}
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return 0, fmt.Errorf("タグのシリアライズに失敗: %w", err)
	}
	if p.Tags == nil {
		tags = []byte("[]")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (name, description, file_path, file_size, mime_type, file_id, metadata, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.FilePath, p.FileSize, p.MimeType, p.FileID, metadata, string(tags),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAssetByID は指定IDのアセットを取得する。
// 削除済みまたは存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) GetAssetByID(ctx context.Context, id int64) (Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ? AND is_active = 1`, id)
	return scanAsset(row)
}

// ExistsActiveName は指定された名前を持つ削除されていないアセットの有無を返す。
func (s *Store) ExistsActiveName(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE name = ? AND is_active = 1`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAssetsParams はアセット一覧取得のパラメータ。
type ListAssetsParams struct {
	// Search は名前または説明に対する部分一致検索文字列。
	Search string
	// Tags は指定されたすべてのタグを持つアセットに絞り込む。
	Tags []string
	// Limit は取得する最大件数。
	Limit int
	// Offset は取得開始位置。
	Offset int
}

// listFilter は一覧・件数クエリ共通のWHERE句と引数を構築する。
func listFilter(p ListAssetsParams) (string, []any) {
	where := []string{"is_active = 1"}
	var args []any
	if p.Search != "" {
		where = append(where, "(name LIKE '%' || ? || '%' OR description LIKE '%' || ? || '%')")
		args = append(args, p.Search, p.Search)
	}
	// タグはJSON配列として保存されているため、引用符付きの部分一致で判定する
	for _, tag := range p.Tags {
		where = append(where, `tags LIKE '%"' || ? || '"%'`)
		args = append(args, tag)
	}
	return strings.Join(where, " AND "), args
}

// ListAssets は条件に一致するアセットの一覧をID昇順で取得する。
func (s *Store) ListAssets(ctx context.Context, p ListAssetsParams) ([]Asset, error) {
	where, args := listFilter(p)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := make([]Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// CountAssets は条件に一致するアセットの総件数を返す。
func (s *Store) CountAssets(ctx context.Context, p ListAssetsParams) (int, error) {
	where, args := listFilter(p)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE `+where, args...).Scan(&count)
	return count, err
}

// UpdateAssetParams はアセット部分更新のパラメータ。nilのフィールドは更新しない。
type UpdateAssetParams struct {
	Name        *string
	Description *string
	FilePath    *string
	FileSize    *int64
	MimeType    *string
	FileID      *int64
	Metadata    json.RawMessage
	Tags        *[]string
}

// UpdateAsset は指定IDのアセットをnilでないフィールドのみ更新する。
// 削除済みまたは存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) UpdateAsset(ctx context.Context, id int64, p UpdateAssetParams) error {
	sets := []string{"updated_at = datetime('now')"}
	var args []any
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *p.Name)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.FilePath != nil {
		sets = append(sets, "file_path = ?")
		args = append(args, *p.FilePath)
	}
	if p.FileSize != nil {
		sets = append(sets, "file_size = ?")
		args = append(args, *p.FileSize)
	}
	if p.MimeType != nil {
		sets = append(sets, "mime_type = ?")
		args = append(args, *p.MimeType)
	}
	if p.FileID != nil {
		sets = append(sets, "file_id = ?")
		args = append(args, *p.FileID)
	}
	if p.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, string(p.Metadata))
	}
	if p.Tags != nil {
		tags, err := json.Marshal(*p.Tags)
		if err != nil {
			return fmt.Errorf("タグのシリアライズに失敗: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(tags))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_active = 1`, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceTags は指定IDのアセットのタグ一覧を置き換える。
// 削除済みまたは存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) ReplaceTags(ctx context.Context, id int64, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	return s.UpdateAsset(ctx, id, UpdateAssetParams{Tags: &tags})
}

// SoftDeleteAsset は指定IDのアセットを論理削除する。
// すでに削除済みまたは存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) SoftDeleteAsset(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET is_active = 0, updated_at = datetime('now') WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
