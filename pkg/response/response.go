// Package response は各バックエンドサービス共通のAPIレスポンス形式を提供する。
package response

import "time"

// Envelope は全サービス共通のJSONレスポンス構造。
type Envelope struct {
	// Message は処理結果の概要メッセージ。
	Message string `json:"message"`
	// StatusCode はHTTPステータスコード。
	StatusCode int `json:"status_code"`
	// Timestamp はレスポンス生成時刻（UTC, RFC3339形式）。
	Timestamp string `json:"timestamp"`
	// Data は成功時のペイロード。
	Data any `json:"data,omitempty"`
	// Error は失敗時のエラーメッセージ。
	Error string `json:"error,omitempty"`
}

// Pagination は一覧系レスポンスのページネーション情報。
type Pagination struct {
	// Page は現在のページ番号（1始まり）。
	Page int `json:"page"`
	// PerPage は1ページあたりの件数。
	PerPage int `json:"per_page"`
	// Total は条件に一致した総件数。
	Total int `json:"total"`
	// Pages は総ページ数。
	Pages int `json:"pages"`
}

// Success は成功レスポンスのエンベロープを生成する。
func Success(statusCode int, message string, data any) Envelope {
	return Envelope{
		Message:    message,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Data:       data,
	}
}

// Failure は失敗レスポンスのエンベロープを生成する。
func Failure(statusCode int, errMsg string) Envelope {
	return Envelope{
		Message:    "Error",
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Error:      errMsg,
	}
}

// NewPagination はページネーション情報を生成する。総ページ数は切り上げで計算する。
func NewPagination(page, perPage, total int) Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   pages,
	}
}
