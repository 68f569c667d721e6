package assets

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS assets (
    -- アセットの一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- アセット名
    name TEXT NOT NULL,
    -- アセットの説明
    description TEXT NOT NULL DEFAULT '',
    -- ストレージ上のファイルパス
    file_path TEXT NOT NULL DEFAULT '',
    -- ファイルサイズ（バイト）
    file_size INTEGER,
    -- MIMEタイプ
    mime_type TEXT,
    -- 関連するファイルサービス上のファイルID
    file_id INTEGER,
    -- 任意のメタデータ（JSONオブジェクト）
    metadata TEXT NOT NULL DEFAULT '{}',
    -- タグ一覧（JSON配列）
    tags TEXT NOT NULL DEFAULT '[]',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 論理削除フラグ（0で削除済み）
    is_active INTEGER NOT NULL DEFAULT 1
);

-- 名前での重複チェックと検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_assets_name
    ON assets(name);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
