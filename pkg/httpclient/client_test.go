package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestClientGetJSON はGETリクエストの送信とデシリアライズを検証する。
func TestClientGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("レスポンスボディがresultにデシリアライズされること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/files/1/presigned-url" {
				t.Errorf("パス = %q, want %q", r.URL.Path, "/api/files/1/presigned-url")
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"presigned_url": "http://storage/key"})
		}))
		t.Cleanup(server.Close)

		var result map[string]string
		client := New(server.URL)
		if err := client.GetJSON(context.Background(), "/api/files/1/presigned-url", &result); err != nil {
			t.Fatalf("GETリクエストに失敗: %v", err)
		}
		if result["presigned_url"] != "http://storage/key" {
			t.Errorf("presigned_url = %q, want %q", result["presigned_url"], "http://storage/key")
		}
	})

	t.Run("2xx以外のステータスはStatusErrorになること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		err := client.GetJSON(context.Background(), "/missing", nil)

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("err = %v, want *StatusError", err)
		}
		if statusErr.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("接続できない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		client := NewWithTimeout("http://127.0.0.1:1", time.Second)
		if err := client.GetJSON(context.Background(), "/health", nil); err == nil {
			t.Error("接続失敗なのにエラーが返らなかった")
		}
	})
}

// TestClientPostJSON はPOSTリクエストの送信を検証する。
func TestClientPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("JSONボディが送信されること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("メソッド = %q, want %q", r.Method, http.MethodPost)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("リクエストボディのパースに失敗: %v", err)
			}
			if body["name"] != "test-asset" {
				t.Errorf("name = %q, want %q", body["name"], "test-asset")
			}
			w.WriteHeader(http.StatusCreated)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		err := client.PostJSON(context.Background(), "/api/assets", map[string]string{"name": "test-asset"}, nil)
		if err != nil {
			t.Fatalf("POSTリクエストに失敗: %v", err)
		}
	})
}

// TestIdentityPropagation はコンテキスト経由の識別情報伝播を検証する。
func TestIdentityPropagation(t *testing.T) {
	t.Parallel()

	t.Run("WithIdentityで設定した情報がヘッダーとして送信されること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-User-ID"); got != "1" {
				t.Errorf("X-User-ID = %q, want %q", got, "1")
			}
			if got := r.Header.Get("X-Username"); got != "admin" {
				t.Errorf("X-Username = %q, want %q", got, "admin")
			}
			if got := r.Header.Get("X-User-Role"); got != "admin" {
				t.Errorf("X-User-Role = %q, want %q", got, "admin")
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)

		ctx := WithIdentity(context.Background(), "1", "admin", "admin")
		client := New(server.URL)
		if err := client.GetJSON(ctx, "/api/files", nil); err != nil {
			t.Fatalf("GETリクエストに失敗: %v", err)
		}
	})

	t.Run("識別情報が無い場合はヘッダーが送信されないこと", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-User-ID"); got != "" {
				t.Errorf("X-User-ID = %q, want 空", got)
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		if err := client.GetJSON(context.Background(), "/api/files", nil); err != nil {
			t.Fatalf("GETリクエストに失敗: %v", err)
		}
	})
}
