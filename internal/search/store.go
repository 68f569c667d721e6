package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Entry は検索インデックスのDB行。
type Entry struct {
	// ID はエントリの一意識別子。
	ID int64
	// EntityType は対象エンティティの種別。
	EntityType string
	// EntityID は対象エンティティのID。
	EntityID int64
	// SearchData は検索対象のドキュメント。
	SearchData json.RawMessage
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// Store は検索インデックスのSQLite永続化層。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// entryColumns はSELECT句で取得するカラムの一覧。scanEntryの順序と同期すること。
const entryColumns = `id, entity_type, entity_id, search_data, created_at, updated_at`

// scanEntry は1行分のクエリ結果をEntryに変換する。
func scanEntry(row interface{ Scan(dest ...any) error }) (Entry, error) {
	var e Entry
	var searchData string
	if err := row.Scan(&e.ID, &e.EntityType, &e.EntityID, &searchData, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	e.SearchData = json.RawMessage(searchData)
	return e, nil
}

// Upsert はエンティティのインデックスエントリを登録する。
// 同一エンティティのエントリがすでに存在する場合はドキュメントを置き換える。
func (s *Store) Upsert(ctx context.Context, entityType string, entityID int64, searchData json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_indices (entity_type, entity_id, search_data)
		VALUES (?, ?, ?)
		ON CONFLICT (entity_type, entity_id)
		DO UPDATE SET search_data = excluded.search_data, updated_at = datetime('now')`,
		entityType, entityID, string(searchData),
	)
	return err
}

// Delete は指定エンティティのインデックスエントリを削除する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) Delete(ctx context.Context, entityType string, entityID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_indices WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID)
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

// List は指定種別のインデックスエントリの一覧を取得する。
// entityTypeが空の場合は全エントリを返す。本文マッチングは呼び出し側で行う。
func (s *Store) List(ctx context.Context, entityType string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM search_indices`
	var args []any
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByType は指定種別のインデックスエントリの件数を返す。
// entityTypeが空の場合は全件数を返す。
func (s *Store) CountByType(ctx context.Context, entityType string) (int, error) {
	query := `SELECT COUNT(*) FROM search_indices`
	var args []any
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}
