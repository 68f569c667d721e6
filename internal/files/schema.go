package files

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS files (
    -- ファイルの一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- ストレージ上の一意なファイル名
    filename TEXT NOT NULL,
    -- アップロード時の元のファイル名
    original_filename TEXT NOT NULL,
    -- オブジェクトストレージ上のキー
    storage_key TEXT NOT NULL,
    -- ファイルサイズ（バイト）
    file_size INTEGER,
    -- MIMEタイプ
    mime_type TEXT,
    -- SHA256チェックサム
    checksum TEXT,
    -- 関連するアセットのID（外部キー制約なし）
    asset_id INTEGER,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 論理削除フラグ（0で削除済み）
    is_active INTEGER NOT NULL DEFAULT 1
);

-- アセットIDでの絞り込みを高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_files_asset_id
    ON files(asset_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
