package gateway

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/minimam/pkg/auth"
	"github.com/nao1215/minimam/pkg/middleware"
	"github.com/nao1215/minimam/pkg/ratelimit"
)

// proxyTimeout はバックエンドへの転送リクエストのタイムアウト。
const proxyTimeout = 30 * time.Second

// probeTimeout はステータス集約時のヘルスプローブのタイムアウト。
// トランスポートのデフォルト（無制限）に任せず、プローブごとに強制する。
const probeTimeout = 5 * time.Second

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// creds は認証情報ストア。
	creds auth.CredentialStore
	// limiter はルートバケット単位のレートリミッタ。
	limiter *ratelimit.Limiter
	// services は論理サービス名→ベースURLのレジストリ。起動後は読み取り専用。
	services map[string]string
	// proxyClient はバックエンド転送用のHTTPクライアント。
	proxyClient *http.Client
	// probeClient はヘルスプローブ用のHTTPクライアント。
	probeClient *http.Client
}

// defaultQuotas はルートバケットごとのレートリミット設定を返す。
// クォータポリシーをルートハンドラから切り離し、この表だけで管理する。
func defaultQuotas() map[string]ratelimit.Quota {
	return map[string]ratelimit.Quota{
		"auth:login":      {Limit: 10, Window: time.Minute},
		"auth:verify":     {Limit: 100, Window: time.Minute},
		"auth:me":         {Limit: 100, Window: time.Minute},
		"proxy:assets":    {Limit: 100, Window: time.Minute},
		"proxy:files":     {Limit: 50, Window: time.Minute},
		"proxy:transcode": {Limit: 30, Window: time.Minute},
		"proxy:search":    {Limit: 200, Window: time.Minute},
		"status":          {Limit: 50, Window: time.Minute},
	}
}

// NewServer は新しいGatewayサーバーを生成する。
// サービスレジストリのURLは起動時に検証し、不正なら設定エラーとして失敗させる。
func NewServer(port string) (*Server, error) {
	jwtSecret := getEnvOr("JWT_SECRET_KEY", "dev-secret-key")

	creds, err := auth.DefaultStore(
		getEnvOr("ADMIN_PASSWORD", "admin123"),
		getEnvOr("USER_PASSWORD", "user123"),
	)
	if err != nil {
		return nil, fmt.Errorf("認証情報ストアの構築に失敗: %w", err)
	}

	services := map[string]string{
		"assets":    getEnvOr("ASSETS_SERVICE_URL", "http://localhost:8001"),
		"files":     getEnvOr("FILES_SERVICE_URL", "http://localhost:8002"),
		"transcode": getEnvOr("TRANSCODE_SERVICE_URL", "http://localhost:8003"),
		"search":    getEnvOr("SEARCH_SERVICE_URL", "http://localhost:8004"),
	}
	for name, baseURL := range services {
		if _, err := url.ParseRequestURI(baseURL); err != nil {
			return nil, fmt.Errorf("サービス%sのURLが不正 (%q): %w", name, baseURL, err)
		}
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		jwtSecret:   jwtSecret,
		creds:       creds,
		limiter:     ratelimit.New(defaultQuotas(), ratelimit.Quota{Limit: 50, Window: time.Hour}),
		services:    services,
		proxyClient: &http.Client{Timeout: proxyTimeout},
		probeClient: &http.Client{Timeout: probeTimeout},
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 保護ルートはレートリミット→認証の順でチェックし、拒否されたリクエストは
// バックエンドに到達しない。
func (s *Server) setupRoutes() {
	// ヘルスチェック（認証・レートリミットなし）
	s.router.GET("/health", s.handleHealth())

	// 認証エンドポイント
	authGroup := s.router.Group("/auth")
	{
		authGroup.POST("/login",
			middleware.RateLimit(s.limiter, "auth:login"),
			s.handleLogin())
		authGroup.POST("/verify",
			middleware.RateLimit(s.limiter, "auth:verify"),
			middleware.RequireAuth(s.jwtSecret),
			s.handleVerify())
		authGroup.GET("/me",
			middleware.RateLimit(s.limiter, "auth:me"),
			middleware.RequireAuth(s.jwtSecret),
			s.handleMe())
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api")
	{
		api.GET("/status",
			middleware.RateLimit(s.limiter, "status"),
			middleware.RequireAuth(s.jwtSecret),
			s.handleStatus())

		for name := range s.services {
			grp := api.Group("/" + name)
			grp.Use(
				middleware.RateLimit(s.limiter, "proxy:"+name),
				middleware.RequireAuth(s.jwtSecret),
			)
			grp.Any("", s.handleProxy(name))
			grp.Any("/*subpath", s.handleProxy(name))
		}
	}

	// 未定義ルート
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})
}

// handleHealth はGateway自身のヘルスチェックを処理するハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "api-gateway",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Username はユーザー名。
	Username string `json:"username"`
	// Password はパスワード。
	Password string `json:"password"`
}

// handleLogin はユーザー名とパスワードを検証してJWTトークンを発行する
// ハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Missing credentials",
				"message": "Username and password are required",
			})
			return
		}

		id, err := auth.Authenticate(s.creds, req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication failed",
				"message": "Invalid username or password",
			})
			return
		}

		token, err := auth.GenerateToken(s.jwtSecret, id)
		if err != nil {
			log.Printf("トークン発行エラー: user=%s, error=%v", id.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal server error",
				"message": "An error occurred during login",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Login successful",
			"token":   token,
			"user":    id,
		})
	}
}

// handleVerify はBearerトークンの有効性を確認するハンドラを返す。
// 検証自体はRequireAuthミドルウェアが行う。
func (s *Server) handleVerify() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"message": "Token is valid",
			"user":    claims.Identity(),
		})
	}
}

// handleMe は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"user": claims.Identity(),
		})
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
