package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/minimam/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWT署名秘密鍵。
const testSecret = "test-secret-key"

// newAuthRouter はRequireAuthを適用したテスト用ルーターを生成する。
func newAuthRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequireAuth(testSecret))
	router.GET("/protected", func(c *gin.Context) {
		claims := GetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"username": claims.Username,
			"role":     string(claims.Role),
		})
	})
	return router
}

// TestRequireAuth はBearerトークン認証ミドルウェアを検証する。
func TestRequireAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでクレームがコンテキストに設定されること", func(t *testing.T) {
		t.Parallel()

		token, err := auth.GenerateToken(testSecret, auth.Identity{UserID: 1, Username: "admin", Role: auth.RoleAdmin})
		if err != nil {
			t.Fatalf("トークン発行に失敗: %v", err)
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newAuthRouter().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["username"] != "admin" {
			t.Errorf("username = %q, want %q", body["username"], "admin")
		}
		if body["role"] != "admin" {
			t.Errorf("role = %q, want %q", body["role"], "admin")
		}
	})

	t.Run("Authorizationヘッダーが無い場合は401が返ること", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		newAuthRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("Bearer形式でないヘッダーは401が返ること", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		newAuthRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("不正なトークンは401が返ること", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		newAuthRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("期限切れトークンは401と期限切れメッセージが返ること", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		claims := auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-1 * time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now.Add(-25 * time.Hour)),
			},
			UserID:   1,
			Username: "admin",
			Role:     auth.RoleAdmin,
		}
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("期限切れトークンの構築に失敗: %v", err)
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		newAuthRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}

		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["message"] != "Token has expired" {
			t.Errorf("message = %q, want %q", body["message"], "Token has expired")
		}
	})

	t.Run("別の秘密鍵で署名されたトークンは401が返ること", func(t *testing.T) {
		t.Parallel()

		token, err := auth.GenerateToken("another-secret", auth.Identity{UserID: 1, Username: "admin", Role: auth.RoleAdmin})
		if err != nil {
			t.Fatalf("トークン発行に失敗: %v", err)
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newAuthRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestGetClaims はクレーム取得ヘルパーを検証する。
func TestGetClaims(t *testing.T) {
	t.Parallel()

	t.Run("ミドルウェア未適用の場合nilが返ること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.GET("/open", func(c *gin.Context) {
			if GetClaims(c) != nil {
				t.Error("未認証コンテキストからクレームが取得できた")
			}
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		router.ServeHTTP(w, req)
	})
}
