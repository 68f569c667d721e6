package files

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// File はファイルメタデータのDB行。
type File struct {
	// ID はファイルの一意識別子。
	ID int64
	// Filename はストレージ上の一意なファイル名。
	Filename string
	// OriginalFilename はアップロード時の元のファイル名。
	OriginalFilename string
	// StorageKey はオブジェクトストレージ上のキー。
	StorageKey string
	// FileSize はファイルサイズ（バイト）。
	FileSize sql.NullInt64
	// MimeType はMIMEタイプ。
	MimeType sql.NullString
	// Checksum はSHA256チェックサム。
	Checksum sql.NullString
	// AssetID は関連するアセットのID。
	AssetID sql.NullInt64
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// Store はファイルメタデータのSQLite永続化層。
// すべての読み取りクエリが論理削除済みの行を除外する。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// fileColumns はSELECT句で取得するカラムの一覧。scanFileの順序と同期すること。
const fileColumns = `id, filename, original_filename, storage_key, file_size, mime_type, checksum, asset_id, created_at, updated_at`

// scanFile は1行分のクエリ結果をFileに変換する。
func scanFile(row interface{ Scan(dest ...any) error }) (File, error) {
	var f File
	if err := row.Scan(
		&f.ID, &f.Filename, &f.OriginalFilename, &f.StorageKey,
		&f.FileSize, &f.MimeType, &f.Checksum, &f.AssetID,
		&f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return File{}, err
	}
	return f, nil
}

// CreateFileParams はファイルメタデータ作成のパラメータ。
type CreateFileParams struct {
	Filename         string
	OriginalFilename string
	StorageKey       string
	FileSize         sql.NullInt64
	MimeType         sql.NullString
	Checksum         sql.NullString
	AssetID          sql.NullInt64
}

// CreateFile は新しいファイルメタデータを挿入し、採番されたIDを返す。
func (s *Store) CreateFile(ctx context.Context, p CreateFileParams) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO files (filename, original_filename, storage_key, file_size, mime_type, checksum, asset_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Filename, p.OriginalFilename, p.StorageKey, p.FileSize, p.MimeType, p.Checksum, p.AssetID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetFileByID は指定IDのファイルメタデータを取得する。
// 削除済みまたは存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) GetFileByID(ctx context.Context, id int64) (File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ? AND is_active = 1`, id)
	return scanFile(row)
}

// ListFilesParams はファイル一覧取得のパラメータ。
type ListFilesParams struct {
	// AssetID は関連アセットでの絞り込み。nilの場合は絞り込まない。
	AssetID *int64
	// MimeType はMIMEタイプの部分一致での絞り込み。
	MimeType string
	// Limit は取得する最大件数。
	Limit int
	// Offset は取得開始位置。
	Offset int
}

// listFilter は一覧・件数クエリ共通のWHERE句と引数を構築する。
func listFilter(p ListFilesParams) (string, []any) {
	where := []string{"is_active = 1"}
	var args []any
	if p.AssetID != nil {
		where = append(where, "asset_id = ?")
		args = append(args, *p.AssetID)
	}
	if p.MimeType != "" {
		where = append(where, "mime_type LIKE '%' || ? || '%'")
		args = append(args, p.MimeType)
	}
	return strings.Join(where, " AND "), args
}

// ListFiles は条件に一致するファイルメタデータの一覧をID昇順で取得する。
func (s *Store) ListFiles(ctx context.Context, p ListFilesParams) ([]File, error) {
	where, args := listFilter(p)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// CountFiles は条件に一致するファイルメタデータの総件数を返す。
func (s *Store) CountFiles(ctx context.Context, p ListFilesParams) (int, error) {
	where, args := listFilter(p)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE `+where, args...).Scan(&count)
	return count, err
}

// SoftDeleteFile は指定IDのファイルメタデータを論理削除する。
// すでに削除済みまたは存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) SoftDeleteFile(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET is_active = 0, updated_at = datetime('now') WHERE id = ? AND is_active = 1`, id)
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
