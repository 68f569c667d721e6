package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Quota はルートバケット1つに適用する許可リクエスト数とウィンドウ幅。
type Quota struct {
	// Limit はウィンドウ内に許可するリクエスト数。
	Limit int
	// Window はウィンドウの長さ。
	Window time.Duration
}

// Limiter は(クライアントキー, ルートバケット)ごとの固定ウィンドウカウンタを
// 管理するレートリミッタ。カウンタはキー単位のミューテックスで保護するため、
// 無関係なクライアント同士のリクエストが直列化されることはない。
type Limiter struct {
	// quotas はバケット名ごとのクォータ設定。構築後は変更しない。
	quotas map[string]Quota
	// def はquotasに載っていないバケットに適用するデフォルトクォータ。
	def Quota
	// windows は"クライアント|バケット"をキーとするウィンドウ状態。
	windows sync.Map
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time

	// sweepMu はlastSweepを保護し、回収処理の多重実行を防ぐ。
	sweepMu sync.Mutex
	// lastSweep は最後に期限切れウィンドウを回収した時刻。
	lastSweep time.Time
}

// sweepInterval は期限切れウィンドウの回収を行う間隔。
const sweepInterval = 10 * time.Minute

// window は1つの(クライアント, バケット)ペアのカウンタ状態。
type window struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// New は指定したバケット別クォータとデフォルトクォータでリミッタを生成する。
func New(quotas map[string]Quota, def Quota) *Limiter {
	copied := make(map[string]Quota, len(quotas))
	for k, v := range quotas {
		copied[k] = v
	}
	return &Limiter{
		quotas: copied,
		def:    def,
		now:    time.Now,
	}
}

// Check はclientKeyからbucketへのリクエスト1件を記録し、クォータ内なら
// trueを返す。クォータ超過時はfalseと、ウィンドウが開けるまでの残り時間を
// 返す。超過したリクエストもカウントに加算されたままになる。
func (l *Limiter) Check(clientKey, bucket string) (bool, time.Duration) {
	quota, ok := l.quotas[bucket]
	if !ok {
		quota = l.def
	}
	if quota.Limit <= 0 || quota.Window <= 0 {
		return true, 0
	}

	now := l.now()
	l.maybeSweep(now)

	v, _ := l.windows.LoadOrStore(clientKey+"|"+bucket, &window{})
	w := v.(*window)

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Sub(w.start) >= quota.Window {
		w.start = now
		w.count = 0
	}
	w.count++

	if w.count > quota.Limit {
		retryAfter := w.start.Add(quota.Window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}
	return true, 0
}

// maybeSweep はウィンドウが閉じたエントリをwindowsから回収する。
// 固定ウィンドウの状態は(クライアント, バケット)の組ごとに増える一方なので、
// sweepIntervalごとに走査して放置するとメモリを食い続けるエントリを削除する。
// 回収と並行するCheckはウィンドウ超過後のリセットと同じ結果になるため、
// クォータが1リクエスト分を超えて緩むことはない。
func (l *Limiter) maybeSweep(now time.Time) {
	l.sweepMu.Lock()
	if now.Sub(l.lastSweep) < sweepInterval {
		l.sweepMu.Unlock()
		return
	}
	l.lastSweep = now
	l.sweepMu.Unlock()

	l.windows.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		expired := now.Sub(w.start) >= l.windowFor(key.(string))
		w.mu.Unlock()
		if expired {
			l.windows.Delete(key)
		}
		return true
	})
}

// windowFor はウィンドウキーに対応するバケットのウィンドウ幅を返す。
func (l *Limiter) windowFor(key string) time.Duration {
	bucket := key
	if i := strings.LastIndex(key, "|"); i >= 0 {
		bucket = key[i+1:]
	}
	if q, ok := l.quotas[bucket]; ok {
		return q.Window
	}
	return l.def.Window
}
