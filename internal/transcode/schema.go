package transcode

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS transcodes (
    -- ジョブの一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- 変換対象のアセットID（外部キー制約なし）
    asset_id INTEGER,
    -- 変換元フォーマット
    source_format TEXT NOT NULL DEFAULT '',
    -- 変換先フォーマット
    target_format TEXT NOT NULL,
    -- 変換結果の出力パス
    output_path TEXT,
    -- ジョブの状態（pending / processing / completed / failed / cancelled）
    status TEXT NOT NULL DEFAULT 'pending',
    -- 進捗率（0〜100）
    progress INTEGER NOT NULL DEFAULT 0,
    -- 失敗時のエラーメッセージ
    error_message TEXT,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- アセットIDと状態での絞り込みを高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_transcodes_asset_id
    ON transcodes(asset_id);
CREATE INDEX IF NOT EXISTS idx_transcodes_status
    ON transcodes(status);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
