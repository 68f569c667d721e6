package search

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS search_indices (
    -- インデックスエントリの一意識別子
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    -- 対象エンティティの種別（asset / file / transcode）
    entity_type TEXT NOT NULL,
    -- 対象エンティティのID
    entity_id INTEGER NOT NULL,
    -- 検索対象のドキュメント（JSONオブジェクト）
    search_data TEXT NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 同一エンティティのエントリは1件のみ
    UNIQUE (entity_type, entity_id)
);

-- エンティティ種別での絞り込みを高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_search_indices_entity_type
    ON search_indices(entity_type);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
