// Package observability はエラートラッキングの初期化ヘルパーを提供する。
package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry はSentryクライアントを初期化する。DSNが空の場合は何もしない。
// 初期化後はRecoveryミドルウェアがパニックをSentryに転送する。
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry は未送信のイベントを送信してから戻る。プロセス終了前に呼ぶ。
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
