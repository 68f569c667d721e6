// Package ratelimit はクライアント・ルート単位の固定ウィンドウ
// レートリミッタを提供する。
//
// 状態はプロセス内メモリにのみ保持し、再起動で消失する。
// ルートバケットごとに独立したクォータとウィンドウを持つため、
// あるルートの枯渇は他ルートに影響しない。
package ratelimit
