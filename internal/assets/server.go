package assets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/minimam/pkg/httpclient"
	"github.com/nao1215/minimam/pkg/middleware"
	"github.com/nao1215/minimam/pkg/response"
)

// Server はアセットサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はアセットの永続化層。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// filesClient はファイルサービスへのHTTPクライアント。
	filesClient *httpclient.Client
}

// NewServer は新しいアセットサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("ASSETS_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/assets.db"
	}
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	filesURL := os.Getenv("FILES_SERVICE_URL")
	if filesURL == "" {
		filesURL = "http://localhost:8002"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:      router,
		port:        port,
		store:       NewStore(sqlDB),
		db:          sqlDB,
		filesClient: httpclient.New(filesURL),
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
	api := s.router.Group("/api/assets")
	{
		// アセット一覧取得
		api.GET("", s.handleList())
		// アセット作成
		api.POST("", s.handleCreate())
		// アセット詳細取得
		api.GET("/:id", s.handleGet())
		// アセット更新
		api.PUT("/:id", s.handleUpdate())
		// アセット削除（論理削除）
		api.DELETE("/:id", s.handleDelete())
		// タグ追加
		api.POST("/:id/tags", s.handleAddTags())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "assets-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// createAssetRequest はアセット作成リクエストのJSON構造。
type createAssetRequest struct {
	// Name はアセット名。
	Name string `json:"name"`
	// Description はアセットの説明。
	Description string `json:"description"`
	// FilePath はストレージ上のファイルパス。
	FilePath string `json:"file_path"`
	// FileSize はファイルサイズ（バイト）。
	FileSize *int64 `json:"file_size"`
	// MimeType はMIMEタイプ。
	MimeType *string `json:"mime_type"`
	// FileID は関連するファイルID。
	FileID *int64 `json:"file_id"`
	// Metadata は任意のメタデータ。
	Metadata json.RawMessage `json:"metadata"`
	// Tags はタグ一覧。
	Tags []string `json:"tags"`
}

// updateAssetRequest はアセット更新リクエストのJSON構造。
// nilのフィールドは更新対象外として扱う。
type updateAssetRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	FilePath    *string         `json:"file_path"`
	FileSize    *int64          `json:"file_size"`
	MimeType    *string         `json:"mime_type"`
	FileID      *int64          `json:"file_id"`
	Metadata    json.RawMessage `json:"metadata"`
	Tags        *[]string       `json:"tags"`
}

// addTagsRequest はタグ追加リクエストのJSON構造。
type addTagsRequest struct {
	// Tags は追加するタグの一覧。
	Tags []string `json:"tags"`
}

// assetResponse はアセットのJSONレスポンス構造。
type assetResponse struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	FilePath    string          `json:"file_path"`
	URL         string          `json:"url"`
	FileSize    *int64          `json:"file_size"`
	MimeType    *string         `json:"mime_type"`
	FileID      *int64          `json:"file_id"`
	Metadata    json.RawMessage `json:"metadata"`
	Tags        []string        `json:"tags"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// toAssetResponse はDB行をJSONレスポンスに変換する。
// file_idが設定されている場合はファイルサービスからダウンロードURLを取得する。
func (s *Server) toAssetResponse(ctx context.Context, a Asset) assetResponse {
	return assetResponse{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		FilePath:    a.FilePath,
		URL:         s.downloadURL(ctx, a),
		FileSize:    nullInt64Ptr(a.FileSize),
		MimeType:    nullStringPtr(a.MimeType),
		FileID:      nullInt64Ptr(a.FileID),
		Metadata:    a.Metadata,
		Tags:        a.Tags,
		CreatedAt:   a.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   a.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// downloadURL はアセットのダウンロードURLを解決する。
// ファイルサービスから署名付きURLを取得できない場合はfile_pathにフォールバックする。
func (s *Server) downloadURL(ctx context.Context, a Asset) string {
	if !a.FileID.Valid {
		return a.FilePath
	}

	var result struct {
		Data struct {
			PresignedURL string `json:"presigned_url"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/api/files/%d/presigned-url", a.FileID.Int64)
	if err := s.filesClient.GetJSON(ctx, path, &result); err != nil {
		log.Printf("署名付きURLの取得に失敗 (file_id=%d): %v", a.FileID.Int64, err)
		return a.FilePath
	}
	if result.Data.PresignedURL == "" {
		return a.FilePath
	}
	return result.Data.PresignedURL
}

// handleList はアセット一覧取得を処理するハンドラを返す。
// ページネーションと名前・説明の部分一致検索、タグでの絞り込みに対応する。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := intQuery(c, "page", 1)
		perPage := intQuery(c, "per_page", 20)

		params := ListAssetsParams{
			Search: c.Query("search"),
			Limit:  perPage,
			Offset: (page - 1) * perPage,
		}
		if tags := c.Query("tags"); tags != "" {
			for _, tag := range strings.Split(tags, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					params.Tags = append(params.Tags, tag)
				}
			}
		}

		assets, err := s.store.ListAssets(c.Request.Context(), params)
		if err != nil {
			log.Printf("アセット一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve assets"))
			return
		}
		total, err := s.store.CountAssets(c.Request.Context(), params)
		if err != nil {
			log.Printf("アセット件数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve assets"))
			return
		}

		responses := make([]assetResponse, 0, len(assets))
		for _, a := range assets {
			responses = append(responses, s.toAssetResponse(c.Request.Context(), a))
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", gin.H{
			"assets":     responses,
			"pagination": response.NewPagination(page, perPage, total),
		}))
	}
}

// handleCreate はアセット作成を処理するハンドラを返す。
// 同名の削除されていないアセットが存在する場合は409を返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAssetRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Name is required"))
			return
		}

		exists, err := s.store.ExistsActiveName(c.Request.Context(), req.Name)
		if err != nil {
			log.Printf("アセット重複チェックエラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to create asset"))
			return
		}
		if exists {
			c.JSON(http.StatusConflict, response.Failure(http.StatusConflict, "Asset with this name already exists"))
			return
		}

		id, err := s.store.CreateAsset(c.Request.Context(), CreateAssetParams{
			Name:        req.Name,
			Description: req.Description,
			FilePath:    req.FilePath,
			FileSize:    toNullInt64(req.FileSize),
			MimeType:    toNullString(req.MimeType),
			FileID:      toNullInt64(req.FileID),
			Metadata:    req.Metadata,
			Tags:        req.Tags,
		})
		if err != nil {
			log.Printf("アセット作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to create asset"))
			return
		}

		created, err := s.store.GetAssetByID(c.Request.Context(), id)
		if err != nil {
			log.Printf("作成したアセットの取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to create asset"))
			return
		}

		c.JSON(http.StatusCreated, response.Success(http.StatusCreated, "Asset created successfully",
			s.toAssetResponse(c.Request.Context(), created)))
	}
}

// handleGet はアセット詳細取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}

		a, err := s.store.GetAssetByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}
		if err != nil {
			log.Printf("アセット取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve asset"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success",
			s.toAssetResponse(c.Request.Context(), a)))
	}
}

// handleUpdate はアセット更新を処理するハンドラを返す。
// リクエストに含まれるフィールドのみを更新する。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}

		var req updateAssetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Invalid request body"))
			return
		}

		err = s.store.UpdateAsset(c.Request.Context(), id, UpdateAssetParams{
			Name:        req.Name,
			Description: req.Description,
			FilePath:    req.FilePath,
			FileSize:    req.FileSize,
			MimeType:    req.MimeType,
			FileID:      req.FileID,
			Metadata:    req.Metadata,
			Tags:        req.Tags,
		})
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}
		if err != nil {
			log.Printf("アセット更新エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to update asset"))
			return
		}

		updated, err := s.store.GetAssetByID(c.Request.Context(), id)
		if err != nil {
			log.Printf("更新後のアセット取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to update asset"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Asset updated successfully",
			s.toAssetResponse(c.Request.Context(), updated)))
	}
}

// handleDelete はアセット削除を処理するハンドラを返す。
// 物理削除は行わず、is_activeフラグを落とす論理削除のみを行う。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}

		err = s.store.SoftDeleteAsset(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}
		if err != nil {
			log.Printf("アセット削除エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to delete asset"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Asset deleted successfully", nil))
	}
}

// handleAddTags はアセットへのタグ追加を処理するハンドラを返す。
// 既存のタグと新しいタグをマージし、重複を取り除いて保存する。
func (s *Server) handleAddTags() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}

		a, err := s.store.GetAssetByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Asset not found"))
			return
		}
		if err != nil {
			log.Printf("アセット取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to add tags"))
			return
		}

		var req addTagsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Tags must be a list"))
			return
		}

		// 既存タグの順序を保ったまま新しいタグをマージする
		merged := make([]string, 0, len(a.Tags)+len(req.Tags))
		seen := make(map[string]bool, len(a.Tags)+len(req.Tags))
		for _, tag := range append(append([]string{}, a.Tags...), req.Tags...) {
			if !seen[tag] {
				seen[tag] = true
				merged = append(merged, tag)
			}
		}

		if err := s.store.ReplaceTags(c.Request.Context(), id, merged); err != nil {
			log.Printf("タグ更新エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to add tags"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Tags added successfully",
			gin.H{"tags": merged}))
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

// toNullInt64 は*int64をsql.NullInt64に変換する。
func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// toNullString は*stringをsql.NullStringに変換する。
func toNullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// nullInt64Ptr はsql.NullInt64を*int64に変換する。
func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// nullStringPtr はsql.NullStringを*stringに変換する。
func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
