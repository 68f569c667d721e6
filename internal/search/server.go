package search

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/minimam/pkg/middleware"
	"github.com/nao1215/minimam/pkg/response"
)

// Server は検索サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は検索インデックスの永続化層。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しい検索サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("SEARCH_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/search.db"
	}
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router: router,
		port:   port,
		store:  NewStore(sqlDB),
		db:     sqlDB,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/search")
	{
		// 横断検索
		api.GET("", s.handleSearch())
		// インデックス登録・更新
		api.POST("/index", s.handleIndex())
		// インデックス削除
		api.DELETE("/index/:entity_type/:entity_id", s.handleRemoveIndex())
		// 検索候補取得
		api.GET("/suggestions", s.handleSuggestions())
		// インデックス統計取得
		api.GET("/analytics", s.handleAnalytics())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "search-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// indexRequest はインデックス登録リクエストのJSON構造。
type indexRequest struct {
	// EntityType は対象エンティティの種別。
	EntityType string `json:"entity_type"`
	// EntityID は対象エンティティのID。
	EntityID *int64 `json:"entity_id"`
	// SearchData は検索対象のドキュメント。
	SearchData json.RawMessage `json:"search_data"`
}

// searchResult は検索結果1件のJSONレスポンス構造。
type searchResult struct {
	// ID は対象エンティティのID（文字列表現）。
	ID string `json:"id"`
	// Title はドキュメントの表示名。
	Title string `json:"title"`
	// Content はドキュメントの本文。
	Content string `json:"content"`
	// Type は対象エンティティの種別。
	Type string `json:"type"`
	// Score は検索語に対する関連度スコア。
	Score int `json:"score"`
	// Metadata はインデックス登録時のドキュメント全体。
	Metadata json.RawMessage `json:"metadata"`

	// updatedAt は日付ソート用。レスポンスには含めない。
	updatedAt time.Time
}

// handleSearch は横断検索を処理するハンドラを返す。
// 検索語はシリアライズ済みドキュメントへの部分一致で照合し、
// 絞り込み・スコアリング・ソートを行ってからページネーションを適用する。
func (s *Server) handleSearch() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Search query is required"))
			return
		}

		entityType := c.Query("type")
		page := intQuery(c, "page", 1)
		perPage := intQuery(c, "per_page", 20)
		sortBy := c.DefaultQuery("sort_by", "relevance")
		sortOrder := c.DefaultQuery("sort_order", "desc")

		entries, err := s.store.List(c.Request.Context(), entityType)
		if err != nil {
			log.Printf("インデックス取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to perform search"))
			return
		}

		results := make([]searchResult, 0)
		for _, e := range entries {
			if !matches(query, e.SearchData) {
				continue
			}
			doc := parseDocument(e.SearchData)
			results = append(results, searchResult{
				ID:        strconv.FormatInt(e.EntityID, 10),
				Title:     doc.title(),
				Content:   doc.body(),
				Type:      e.EntityType,
				Score:     relevanceScore(query, doc),
				Metadata:  e.SearchData,
				updatedAt: e.UpdatedAt,
			})
		}

		sortResults(results, sortBy, sortOrder)

		total := len(results)
		start := (page - 1) * perPage
		if start > total {
			start = total
		}
		end := start + perPage
		if end > total {
			end = total
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", gin.H{
			"query":      query,
			"results":    results[start:end],
			"pagination": response.NewPagination(page, perPage, total),
		}))
	}
}

// sortResults は検索結果を指定の条件で並び替える。
func sortResults(results []searchResult, sortBy, sortOrder string) {
	desc := sortOrder != "asc"
	switch sortBy {
	case "date":
		sort.SliceStable(results, func(i, j int) bool {
			if desc {
				return results[i].updatedAt.After(results[j].updatedAt)
			}
			return results[i].updatedAt.Before(results[j].updatedAt)
		})
	case "name":
		sort.SliceStable(results, func(i, j int) bool {
			if desc {
				return results[i].Title > results[j].Title
			}
			return results[i].Title < results[j].Title
		})
	default: // relevance
		sort.SliceStable(results, func(i, j int) bool {
			if desc {
				return results[i].Score > results[j].Score
			}
			return results[i].Score < results[j].Score
		})
	}
}

// handleIndex はインデックス登録・更新を処理するハンドラを返す。
// 同一エンティティの既存エントリはドキュメントを置き換える。
func (s *Server) handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req indexRequest
		if err := c.ShouldBindJSON(&req); err != nil ||
			req.EntityType == "" || req.EntityID == nil || len(req.SearchData) == 0 {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Entity type, ID, and search data are required"))
			return
		}

		if err := s.store.Upsert(c.Request.Context(), req.EntityType, *req.EntityID, req.SearchData); err != nil {
			log.Printf("インデックス登録エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to index content"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Content indexed successfully", nil))
	}
}

// handleRemoveIndex はインデックス削除を処理するハンドラを返す。
func (s *Server) handleRemoveIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType := c.Param("entity_type")
		entityID, err := strconv.ParseInt(c.Param("entity_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Index not found"))
			return
		}

		err = s.store.Delete(c.Request.Context(), entityType, entityID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Index not found"))
			return
		}
		if err != nil {
			log.Printf("インデックス削除エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to remove index"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Index removed successfully", nil))
	}
}

// handleSuggestions は検索候補取得を処理するハンドラを返す。
// 2文字未満の検索語には空の候補を返す。
func (s *Server) handleSuggestions() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		limit := intQuery(c, "limit", 10)

		if len(query) < 2 {
			c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", []string{}))
			return
		}

		entries, err := s.store.List(c.Request.Context(), "")
		if err != nil {
			log.Printf("インデックス取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to get suggestions"))
			return
		}

		suggestions := make([]string, 0, limit)
		for _, e := range entries {
			if len(suggestions) >= limit {
				break
			}
			if !matches(query, e.SearchData) {
				continue
			}
			if title := parseDocument(e.SearchData).title(); title != "Untitled" {
				suggestions = append(suggestions, title)
			}
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", suggestions))
	}
}

// handleAnalytics はインデックス統計取得を処理するハンドラを返す。
func (s *Server) handleAnalytics() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		total, err := s.store.CountByType(ctx, "")
		if err != nil {
			log.Printf("インデックス件数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to get analytics"))
			return
		}

		byType := make(map[string]int, 3)
		for entityType, key := range map[string]string{
			"asset":     "assets",
			"file":      "files",
			"transcode": "transcodes",
		} {
			count, err := s.store.CountByType(ctx, entityType)
			if err != nil {
				log.Printf("インデックス件数取得エラー (type=%s): %v", entityType, err)
				c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to get analytics"))
				return
			}
			byType[key] = count
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", gin.H{
			"total_indexed": total,
			"by_type":       byType,
		}))
	}
}

// intQuery はクエリパラメータを整数として取得する。不正な値の場合はデフォルト値を返す。
func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v < 1 {
		return def
	}
	return v
}
