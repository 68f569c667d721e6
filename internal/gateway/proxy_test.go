package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// TestDispatchForwarding はプロキシの転送仕様を検証する。
func TestDispatchForwarding(t *testing.T) {
	t.Parallel()

	t.Run("サブパスとクエリ文字列がそのまま転送されること", func(t *testing.T) {
		t.Parallel()

		var gotPath, gotQuery string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		}))
		t.Cleanup(backend.Close)

		s := newTestServer(t, map[string]string{"assets": backend.URL}, nil)
		token := loginForToken(t, s, "user", "user123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/assets/42?page=2&per_page=10", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if gotPath != "/api/assets/42" {
			t.Errorf("転送先パス = %q, want %q", gotPath, "/api/assets/42")
		}
		if gotQuery != "page=2&per_page=10" {
			t.Errorf("転送クエリ = %q, want %q", gotQuery, "page=2&per_page=10")
		}
	})

	t.Run("認証済みユーザーの情報がX-User系ヘッダーで伝播されること", func(t *testing.T) {
		t.Parallel()

		var gotUserID, gotUsername, gotRole, gotUA string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserID = r.Header.Get("X-User-ID")
			gotUsername = r.Header.Get("X-Username")
			gotRole = r.Header.Get("X-User-Role")
			gotUA = r.Header.Get("User-Agent")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		}))
		t.Cleanup(backend.Close)

		s := newTestServer(t, map[string]string{"files": backend.URL}, nil)
		token := loginForToken(t, s, "admin", "admin123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if gotUserID != "1" {
			t.Errorf("X-User-ID = %q, want %q", gotUserID, "1")
		}
		if gotUsername != "admin" {
			t.Errorf("X-Username = %q, want %q", gotUsername, "admin")
		}
		if gotRole != "admin" {
			t.Errorf("X-User-Role = %q, want %q", gotRole, "admin")
		}
		if gotUA != "API-Gateway" {
			t.Errorf("User-Agent = %q, want %q", gotUA, "API-Gateway")
		}
	})

	t.Run("POSTのボディが改変なく転送されること", func(t *testing.T) {
		t.Parallel()

		const payload = `{"name":"intro.mp4","file_type":"video"}`

		var gotBody, gotContentType string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			gotContentType = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1}`))
		}))
		t.Cleanup(backend.Close)

		s := newTestServer(t, map[string]string{"assets": backend.URL}, nil)
		token := loginForToken(t, s, "user", "user123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/assets", strings.NewReader(payload))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		if gotBody != payload {
			t.Errorf("転送ボディ = %q, want %q", gotBody, payload)
		}
		if gotContentType != "application/json" {
			t.Errorf("Content-Type = %q, want %q", gotContentType, "application/json")
		}
	})

	t.Run("バックエンドのステータスとボディがそのまま中継されること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Asset not found"}`))
		}))
		t.Cleanup(backend.Close)

		s := newTestServer(t, map[string]string{"assets": backend.URL}, nil)
		token := loginForToken(t, s, "user", "user123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/assets/999", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if got := w.Body.String(); got != `{"error":"Asset not found"}` {
			t.Errorf("レスポンスボディ = %q, want %q", got, `{"error":"Asset not found"}`)
		}
	})
}

// TestDispatchErrors はプロキシのエラーハンドリングを検証する。
func TestDispatchErrors(t *testing.T) {
	t.Parallel()

	t.Run("バックエンドに接続できない場合は503が返ること", func(t *testing.T) {
		t.Parallel()

		// 接続先が存在しないアドレスを指定する
		s := newTestServer(t, map[string]string{"assets": "http://127.0.0.1:1"}, nil)
		token := loginForToken(t, s, "user", "user123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}

		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["error"] != "assets service unavailable" {
			t.Errorf("error = %q, want %q", body["error"], "assets service unavailable")
		}
	})

	t.Run("サポート外のメソッドはバックエンドに到達せず405が返ること", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int64
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(backend.Close)

		s := newTestServer(t, map[string]string{"assets": backend.URL}, nil)
		token := loginForToken(t, s, "admin", "admin123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/api/assets/1", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusMethodNotAllowed)
		}
		if hits.Load() != 0 {
			t.Errorf("バックエンド呼び出し回数 = %d, want 0", hits.Load())
		}
	})

	t.Run("一般ユーザーのDELETEは403が返ること", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int64
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(backend.Close)

		s := newTestServer(t, map[string]string{"assets": backend.URL}, nil)
		token := loginForToken(t, s, "user", "user123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/assets/1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		if hits.Load() != 0 {
			t.Errorf("バックエンド呼び出し回数 = %d, want 0", hits.Load())
		}
	})

	t.Run("管理者のDELETEはバックエンドに転送されること", func(t *testing.T) {
		t.Parallel()

		var gotMethod string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"message":"deleted"}`))
		}))
		t.Cleanup(backend.Close)

		s := newTestServer(t, map[string]string{"assets": backend.URL}, nil)
		token := loginForToken(t, s, "admin", "admin123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/assets/1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if gotMethod != http.MethodDelete {
			t.Errorf("転送メソッド = %q, want %q", gotMethod, http.MethodDelete)
		}
	})
}

// TestHandleStatus はバックエンド全体の状態集約エンドポイントを検証する。
func TestHandleStatus(t *testing.T) {
	t.Parallel()

	t.Run("全サービスの状態が並行に収集されること", func(t *testing.T) {
		t.Parallel()

		healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				t.Errorf("ヘルスチェックのパス = %q, want %q", r.URL.Path, "/health")
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		}))
		t.Cleanup(healthy.Close)

		unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(unhealthy.Close)

		s := newTestServer(t, map[string]string{
			"assets":    healthy.URL,
			"files":     healthy.URL,
			"transcode": unhealthy.URL,
			"search":    "http://127.0.0.1:1", // 接続不可
		}, nil)

		token := loginForToken(t, s, "user", "user123")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		var result struct {
			Gateway  string                   `json:"gateway"`
			Services map[string]serviceStatus `json:"services"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if result.Gateway != "healthy" {
			t.Errorf("gateway = %q, want %q", result.Gateway, "healthy")
		}
		if len(result.Services) != 4 {
			t.Fatalf("サービス数 = %d, want 4", len(result.Services))
		}
		if got := result.Services["assets"].Status; got != "healthy" {
			t.Errorf("assets.status = %q, want %q", got, "healthy")
		}
		if got := result.Services["files"].Status; got != "healthy" {
			t.Errorf("files.status = %q, want %q", got, "healthy")
		}
		if got := result.Services["transcode"].Status; got != "unhealthy" {
			t.Errorf("transcode.status = %q, want %q", got, "unhealthy")
		}
		if got := result.Services["search"].Status; got != "unavailable" {
			t.Errorf("search.status = %q, want %q", got, "unavailable")
		}
		if result.Services["search"].Error == "" {
			t.Error("接続不可サービスのerrorフィールドが空")
		}
	})

	t.Run("トークンなしのアクセスは401を返すこと", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, nil, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
