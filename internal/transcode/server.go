package transcode

import (
	"database/sql"
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

	"github.com/nao1215/minimam/pkg/middleware"
	"github.com/nao1215/minimam/pkg/response"
)

// supportedFormats はカテゴリごとの変換先フォーマットの一覧。
var supportedFormats = map[string][]string{
	"video": {"mp4", "avi", "mov", "mkv", "webm"},
	"audio": {"mp3", "wav", "aac", "ogg", "flac"},
	"image": {"jpg", "png", "gif", "webp"},
}

// isSupportedFormat は指定フォーマットが変換先として利用可能かを判定する。
func isSupportedFormat(format string) bool {
	format = strings.ToLower(format)
	for _, formats := range supportedFormats {
		for _, f := range formats {
			if f == format {
				return true
			}
		}
	}
	return false
}

// Server は変換サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は変換ジョブの永続化層。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// worker は変換ジョブのバックグラウンド処理を担う。
	worker *worker
}

// NewServer は新しい変換サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("TRANSCODE_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/transcode.db"
	}
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	outputDir := os.Getenv("TRANSCODE_OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "/data/output"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	store := NewStore(sqlDB)
	s := &Server{
		router: router,
		port:   port,
		store:  store,
		db:     sqlDB,
		worker: &worker{
			store:        store,
			stepInterval: defaultStepInterval,
			outputDir:    outputDir,
		},
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
	api := s.router.Group("/api/transcode")
	{
		// 変換ジョブ一覧取得
		api.GET("", s.handleList())
		// 変換ジョブ作成
		api.POST("", s.handleCreate())
		// 対応フォーマット一覧取得
		api.GET("/formats", s.handleFormats())
		// 変換ジョブ詳細取得
		api.GET("/:id", s.handleGet())
		// 変換ジョブのキャンセル
		api.POST("/:id/cancel", s.handleCancel())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "transcode-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// createTranscodeRequest は変換ジョブ作成リクエストのJSON構造。
type createTranscodeRequest struct {
	// AssetID は変換対象のアセットID。
	AssetID *int64 `json:"asset_id"`
	// SourceFormat は変換元フォーマット。
	SourceFormat string `json:"source_format"`
	// TargetFormat は変換先フォーマット。
	TargetFormat string `json:"target_format"`
}

// transcodeResponse は変換ジョブのJSONレスポンス構造。
type transcodeResponse struct {
	ID           int64   `json:"id"`
	AssetID      *int64  `json:"asset_id"`
	SourceFormat string  `json:"source_format"`
	TargetFormat string  `json:"target_format"`
	OutputPath   *string `json:"output_path"`
	Status       string  `json:"status"`
	Progress     int     `json:"progress"`
	ErrorMessage *string `json:"error_message"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// toTranscodeResponse はDB行をJSONレスポンスに変換する。
func toTranscodeResponse(tc Transcode) transcodeResponse {
	resp := transcodeResponse{
		ID:           tc.ID,
		SourceFormat: tc.SourceFormat,
		TargetFormat: tc.TargetFormat,
		Status:       tc.Status,
		Progress:     tc.Progress,
		CreatedAt:    tc.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:    tc.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if tc.AssetID.Valid {
		resp.AssetID = &tc.AssetID.Int64
	}
	if tc.OutputPath.Valid {
		resp.OutputPath = &tc.OutputPath.String
	}
	if tc.ErrorMessage.Valid {
		resp.ErrorMessage = &tc.ErrorMessage.String
	}
	return resp
}

// handleList は変換ジョブ一覧取得を処理するハンドラを返す。
// アセットIDと状態での絞り込みに対応する。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := intQuery(c, "page", 1)
		perPage := intQuery(c, "per_page", 20)

		params := ListTranscodesParams{
			Status: c.Query("status"),
			Limit:  perPage,
			Offset: (page - 1) * perPage,
		}
		if v := c.Query("asset_id"); v != "" {
			if assetID, err := strconv.ParseInt(v, 10, 64); err == nil {
				params.AssetID = &assetID
			}
		}

		transcodes, err := s.store.ListTranscodes(c.Request.Context(), params)
		if err != nil {
			log.Printf("変換ジョブ一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve transcodes"))
			return
		}
		total, err := s.store.CountTranscodes(c.Request.Context(), params)
		if err != nil {
			log.Printf("変換ジョブ件数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve transcodes"))
			return
		}

		responses := make([]transcodeResponse, 0, len(transcodes))
		for _, tc := range transcodes {
			responses = append(responses, toTranscodeResponse(tc))
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", gin.H{
			"transcodes": responses,
			"pagination": response.NewPagination(page, perPage, total),
		}))
	}
}

// handleCreate は変換ジョブ作成を処理するハンドラを返す。
// ジョブをpending状態で登録し、バックグラウンドワーカーを起動する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTranscodeRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.AssetID == nil || req.TargetFormat == "" {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Asset ID and target format are required"))
			return
		}
		if !isSupportedFormat(req.TargetFormat) {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Unsupported target format"))
			return
		}

		id, err := s.store.CreateTranscode(c.Request.Context(), *req.AssetID, req.SourceFormat, req.TargetFormat)
		if err != nil {
			log.Printf("変換ジョブ作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to create transcode job"))
			return
		}

		created, err := s.store.GetTranscodeByID(c.Request.Context(), id)
		if err != nil {
			log.Printf("作成した変換ジョブの取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to create transcode job"))
			return
		}

		// バックグラウンドで変換処理を開始する
		go s.worker.process(id, created.TargetFormat)

		c.JSON(http.StatusCreated, response.Success(http.StatusCreated, "Transcode job created successfully",
			toTranscodeResponse(created)))
	}
}

// handleGet は変換ジョブ詳細取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Transcode not found"))
			return
		}

		tc, err := s.store.GetTranscodeByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Transcode not found"))
			return
		}
		if err != nil {
			log.Printf("変換ジョブ取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve transcode"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", toTranscodeResponse(tc)))
	}
}

// handleCancel は変換ジョブのキャンセルを処理するハンドラを返す。
// 完了済みまたは失敗済みのジョブはキャンセルできない。
func (s *Server) handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Transcode not found"))
			return
		}

		tc, err := s.store.GetTranscodeByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "Transcode not found"))
			return
		}
		if err != nil {
			log.Printf("変換ジョブ取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to cancel transcode"))
			return
		}

		if tc.Status == StatusCompleted || tc.Status == StatusFailed {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Cannot cancel completed or failed job"))
			return
		}

		ok, err := s.store.Cancel(c.Request.Context(), id)
		if err != nil {
			log.Printf("変換ジョブキャンセルエラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to cancel transcode"))
			return
		}
		if !ok {
			// 取得とキャンセルの間に完了または失敗に遷移した場合
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Cannot cancel completed or failed job"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Transcode job cancelled successfully", nil))
	}
}

// handleFormats は対応フォーマット一覧取得を処理するハンドラを返す。
func (s *Server) handleFormats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", supportedFormats))
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
