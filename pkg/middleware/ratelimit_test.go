package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/minimam/pkg/ratelimit"
)

// TestRateLimit はレートリミットミドルウェアを検証する。
func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("クォータ内のリクエストは通過すること", func(t *testing.T) {
		t.Parallel()

		limiter := ratelimit.New(map[string]ratelimit.Quota{
			"test": {Limit: 3, Window: time.Minute},
		}, ratelimit.Quota{})

		router := gin.New()
		router.GET("/limited", RateLimit(limiter, "test"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/limited", nil)
			router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("%d件目のステータスコード = %d, want %d", i+1, w.Code, http.StatusOK)
			}
		}
	})

	t.Run("クォータ超過時は429とRetry-Afterが返ること", func(t *testing.T) {
		t.Parallel()

		limiter := ratelimit.New(map[string]ratelimit.Quota{
			"test": {Limit: 1, Window: time.Minute},
		}, ratelimit.Quota{})

		router := gin.New()
		router.GET("/limited", RateLimit(limiter, "test"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req1 := httptest.NewRequest(http.MethodGet, "/limited", nil)
		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, req1)

		req2 := httptest.NewRequest(http.MethodGet, "/limited", nil)
		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, req2)

		if w2.Code != http.StatusTooManyRequests {
			t.Fatalf("ステータスコード = %d, want %d", w2.Code, http.StatusTooManyRequests)
		}
		if w2.Header().Get("Retry-After") == "" {
			t.Error("Retry-Afterヘッダーが設定されていない")
		}

		var body map[string]string
		if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["error"] != "Rate limit exceeded" {
			t.Errorf("error = %q, want %q", body["error"], "Rate limit exceeded")
		}
	})

	t.Run("ミドルウェア未適用のルートは影響を受けないこと", func(t *testing.T) {
		t.Parallel()

		limiter := ratelimit.New(map[string]ratelimit.Quota{
			"test": {Limit: 1, Window: time.Minute},
		}, ratelimit.Quota{})

		router := gin.New()
		router.GET("/limited", RateLimit(limiter, "test"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		// /limitedのクォータを使い切る
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/limited", nil)
			router.ServeHTTP(w, req)
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ヘルスチェックのステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}
