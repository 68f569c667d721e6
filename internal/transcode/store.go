package transcode

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// ジョブの状態。
const (
	// StatusPending は処理待ちの状態。
	StatusPending = "pending"
	// StatusProcessing は処理中の状態。
	StatusProcessing = "processing"
	// StatusCompleted は正常完了した状態。
	StatusCompleted = "completed"
	// StatusFailed は失敗した状態。
	StatusFailed = "failed"
	// StatusCancelled はキャンセルされた状態。
	StatusCancelled = "cancelled"
)

// Transcode は変換ジョブのDB行。
type Transcode struct {
	// ID はジョブの一意識別子。
	ID int64
	// AssetID は変換対象のアセットID。
	AssetID sql.NullInt64
	// SourceFormat は変換元フォーマット。
	SourceFormat string
	// TargetFormat は変換先フォーマット。
	TargetFormat string
	// OutputPath は変換結果の出力パス。
	OutputPath sql.NullString
	// Status はジョブの状態。
	Status string
	// Progress は進捗率（0〜100）。
	Progress int
	// ErrorMessage は失敗時のエラーメッセージ。
	ErrorMessage sql.NullString
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// Store は変換ジョブのSQLite永続化層。
// ワーカーからの状態遷移はすべて現在の状態を条件に持つ条件付きUPDATEであり、
// キャンセル済みジョブをワーカーが上書きしないことを保証する。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// transcodeColumns はSELECT句で取得するカラムの一覧。scanTranscodeの順序と同期すること。
const transcodeColumns = `id, asset_id, source_format, target_format, output_path, status, progress, error_message, created_at, updated_at`

// scanTranscode は1行分のクエリ結果をTranscodeに変換する。
func scanTranscode(row interface{ Scan(dest ...any) error }) (Transcode, error) {
	var tc Transcode
	if err := row.Scan(
		&tc.ID, &tc.AssetID, &tc.SourceFormat, &tc.TargetFormat,
		&tc.OutputPath, &tc.Status, &tc.Progress, &tc.ErrorMessage,
		&tc.CreatedAt, &tc.UpdatedAt,
	); err != nil {
		return Transcode{}, err
	}
	return tc, nil
}

// CreateTranscode は新しい変換ジョブをpending状態で挿入し、採番されたIDを返す。
func (s *Store) CreateTranscode(ctx context.Context, assetID int64, sourceFormat, targetFormat string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transcodes (asset_id, source_format, target_format, status, progress)
		VALUES (?, ?, ?, ?, 0)`,
		assetID, sourceFormat, targetFormat, StatusPending,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTranscodeByID は指定IDの変換ジョブを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) GetTranscodeByID(ctx context.Context, id int64) (Transcode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transcodeColumns+` FROM transcodes WHERE id = ?`, id)
	return scanTranscode(row)
}

// ListTranscodesParams は変換ジョブ一覧取得のパラメータ。
type ListTranscodesParams struct {
	// AssetID はアセットIDでの絞り込み。nilの場合は絞り込まない。
	AssetID *int64
	// Status は状態での絞り込み。
	Status string
	// Limit は取得する最大件数。
	Limit int
	// Offset は取得開始位置。
	Offset int
}

// listFilter は一覧・件数クエリ共通のWHERE句と引数を構築する。
func listFilter(p ListTranscodesParams) (string, []any) {
	where := []string{"1 = 1"}
	var args []any
	if p.AssetID != nil {
		where = append(where, "asset_id = ?")
		args = append(args, *p.AssetID)
	}
	if p.Status != "" {
		where = append(where, "status = ?")
		args = append(args, p.Status)
	}
	return strings.Join(where, " AND "), args
}

// ListTranscodes は条件に一致する変換ジョブの一覧をID昇順で取得する。
func (s *Store) ListTranscodes(ctx context.Context, p ListTranscodesParams) ([]Transcode, error) {
	where, args := listFilter(p)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transcodeColumns+` FROM transcodes WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transcodes := make([]Transcode, 0)
	for rows.Next() {
		tc, err := scanTranscode(rows)
		if err != nil {
			return nil, err
		}
		transcodes = append(transcodes, tc)
	}
	return transcodes, rows.Err()
}

// CountTranscodes は条件に一致する変換ジョブの総件数を返す。
func (s *Store) CountTranscodes(ctx context.Context, p ListTranscodesParams) (int, error) {
	where, args := listFilter(p)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcodes WHERE `+where, args...).Scan(&count)
	return count, err
}

// MarkProcessing はpending状態のジョブをprocessingに遷移させる。
// すでにpendingでない場合（開始前にキャンセルされた場合）はfalseを返す。
func (s *Store) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	return s.conditionalUpdate(ctx, `
		UPDATE transcodes SET status = ?, progress = 0, updated_at = datetime('now')
		WHERE id = ? AND status = ?`,
		StatusProcessing, id, StatusPending)
}

// SetProgress はprocessing状態のジョブの進捗を更新する。
// ジョブがすでにprocessingでない場合（キャンセルされた場合）はfalseを返す。
func (s *Store) SetProgress(ctx context.Context, id int64, progress int) (bool, error) {
	return s.conditionalUpdate(ctx, `
		UPDATE transcodes SET progress = ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?`,
		progress, id, StatusProcessing)
}

// MarkCompleted はprocessing状態のジョブを完了に遷移させる。
// ジョブがすでにprocessingでない場合はfalseを返す。
func (s *Store) MarkCompleted(ctx context.Context, id int64, outputPath string) (bool, error) {
	return s.conditionalUpdate(ctx, `
		UPDATE transcodes SET status = ?, progress = 100, output_path = ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?`,
		StatusCompleted, outputPath, id, StatusProcessing)
}

// MarkFailed はジョブを失敗に遷移させ、エラーメッセージを記録する。
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transcodes SET status = ?, error_message = ?, updated_at = datetime('now')
		WHERE id = ?`,
		StatusFailed, errMsg, id)
	return err
}

// Cancel はジョブをキャンセルに遷移させる。
// completedまたはfailedのジョブはキャンセルできず、falseを返す。
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	return s.conditionalUpdate(ctx, `
		UPDATE transcodes SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND status NOT IN (?, ?)`,
		StatusCancelled, id, StatusCompleted, StatusFailed)
}

// conditionalUpdate は条件付きUPDATEを実行し、更新が行われたかを返す。
func (s *Store) conditionalUpdate(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
