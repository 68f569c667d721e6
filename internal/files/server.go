package files

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/minimam/pkg/middleware"
	"github.com/nao1215/minimam/pkg/response"
)

// Server はファイルサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はファイルメタデータの永続化層。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// objects はオブジェクトストレージのキー命名とURL生成を担う。
	objects *objectStore
}

// NewServer は新しいファイルサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("FILES_DB_PATH")
	if dbPath == "" {
		dbPath = "/data/files.db"
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
		router:  router,
		port:    port,
		store:   NewStore(sqlDB),
		db:      sqlDB,
		objects: newObjectStore(),
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
	api := s.router.Group("/api/files")
	{
		// ファイル一覧取得
		api.GET("", s.handleList())
		// アップロード用署名付きURL発行
		api.POST("/presigned-url", s.handleUploadURL())
		// アップロード完了登録
		api.POST("/complete-upload", s.handleCompleteUpload())
		// ファイル詳細取得
		api.GET("/:id", s.handleGet())
		// ダウンロード用署名付きURL発行
		api.GET("/:id/presigned-url", s.handleDownloadURL())
		// ファイル削除（論理削除）
		api.DELETE("/:id", s.handleDelete())
		// ファイル整合性検証
		api.POST("/:id/validate", s.handleValidate())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "files-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// uploadURLRequest はアップロード用署名付きURL発行リクエストのJSON構造。
type uploadURLRequest struct {
	// Filename はアップロードするファイルの名前。
	Filename string `json:"filename"`
	// ContentType はアップロードするファイルのMIMEタイプ。
	ContentType string `json:"content_type"`
}

// completeUploadRequest はアップロード完了登録リクエストのJSON構造。
type completeUploadRequest struct {
	// StorageKey はオブジェクトストレージ上のキー。
	StorageKey string `json:"storage_key"`
	// OriginalFilename はアップロード時の元のファイル名。
	OriginalFilename string `json:"original_filename"`
	// UniqueFilename はストレージ上の一意なファイル名。
	UniqueFilename string `json:"unique_filename"`
	// FileSize はファイルサイズ（バイト）。
	FileSize *int64 `json:"file_size"`
	// MimeType はMIMEタイプ。
	MimeType *string `json:"mime_type"`
	// Checksum はSHA256チェックサム。
	Checksum *string `json:"checksum"`
	// AssetID は関連するアセットのID。
	AssetID *int64 `json:"asset_id"`
}

// validateRequest はファイル整合性検証リクエストのJSON構造。
// クライアントが実体から計算した値を受け取り、登録時の値と比較する。
type validateRequest struct {
	// Checksum は検証対象のSHA256チェックサム。
	Checksum string `json:"checksum"`
	// FileSize は検証対象のファイルサイズ（バイト）。
	FileSize int64 `json:"file_size"`
}

// fileResponse はファイルメタデータのJSONレスポンス構造。
type fileResponse struct {
	ID               int64   `json:"id"`
	Filename         string  `json:"filename"`
	OriginalFilename string  `json:"original_filename"`
	StorageKey       string  `json:"storage_key"`
	FileSize         *int64  `json:"file_size"`
	MimeType         *string `json:"mime_type"`
	Checksum         *string `json:"checksum"`
	AssetID          *int64  `json:"asset_id"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// toFileResponse はDB行をJSONレスポンスに変換する。
func toFileResponse(f File) fileResponse {
	return fileResponse{
		ID:               f.ID,
		Filename:         f.Filename,
		OriginalFilename: f.OriginalFilename,
		StorageKey:       f.StorageKey,
		FileSize:         nullInt64Ptr(f.FileSize),
		MimeType:         nullStringPtr(f.MimeType),
		Checksum:         nullStringPtr(f.Checksum),
		AssetID:          nullInt64Ptr(f.AssetID),
		CreatedAt:        f.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:        f.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// handleList はファイル一覧取得を処理するハンドラを返す。
// アセットIDとMIMEタイプでの絞り込みに対応する。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := intQuery(c, "page", 1)
		perPage := intQuery(c, "per_page", 20)

		params := ListFilesParams{
			MimeType: c.Query("mime_type"),
			Limit:    perPage,
			Offset:   (page - 1) * perPage,
		}
		if v := c.Query("asset_id"); v != "" {
			if assetID, err := strconv.ParseInt(v, 10, 64); err == nil {
				params.AssetID = &assetID
			}
		}

		files, err := s.store.ListFiles(c.Request.Context(), params)
		if err != nil {
			log.Printf("ファイル一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve files"))
			return
		}
		total, err := s.store.CountFiles(c.Request.Context(), params)
		if err != nil {
			log.Printf("ファイル件数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve files"))
			return
		}

		responses := make([]fileResponse, 0, len(files))
		for _, f := range files {
			responses = append(responses, toFileResponse(f))
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", gin.H{
			"files":      responses,
			"pagination": response.NewPagination(page, perPage, total),
		}))
	}
}

// handleUploadURL はアップロード用署名付きURL発行を処理するハンドラを返す。
// 一意なストレージキーを採番し、クライアントが直接アップロードするためのURLを返す。
func (s *Server) handleUploadURL() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req uploadURLRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Filename is required"))
			return
		}
		if !allowedFile(req.Filename) {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "File type not allowed"))
			return
		}

		uniqueFilename := fmt.Sprintf("%s_%s", uuid.New().String(), sanitizeFilename(req.Filename))
		storageKey := fmt.Sprintf("uploads/%s", uniqueFilename)

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Pre-signed URL generated successfully", gin.H{
			"presigned_url":     s.objects.presignedURL(storageKey),
			"storage_key":       storageKey,
			"unique_filename":   uniqueFilename,
			"original_filename": req.Filename,
		}))
	}
}

// handleCompleteUpload はアップロード完了登録を処理するハンドラを返す。
// クライアントのアップロード完了後にファイルメタデータをDBに記録する。
func (s *Server) handleCompleteUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.StorageKey == "" || req.OriginalFilename == "" {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Missing required fields"))
			return
		}

		filename := req.UniqueFilename
		if filename == "" {
			// ストレージキーの末尾要素をファイル名として使用する
			filename = path.Base(req.StorageKey)
		}

		id, err := s.store.CreateFile(c.Request.Context(), CreateFileParams{
			Filename:         filename,
			OriginalFilename: req.OriginalFilename,
			StorageKey:       req.StorageKey,
			FileSize:         toNullInt64(req.FileSize),
			MimeType:         toNullString(req.MimeType),
			Checksum:         toNullString(req.Checksum),
			AssetID:          toNullInt64(req.AssetID),
		})
		if err != nil {
			log.Printf("ファイルメタデータ作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to complete upload"))
			return
		}

		created, err := s.store.GetFileByID(c.Request.Context(), id)
		if err != nil {
			log.Printf("作成したファイルメタデータの取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to complete upload"))
			return
		}

		c.JSON(http.StatusCreated, response.Success(http.StatusCreated, "File upload completed successfully",
			toFileResponse(created)))
	}
}

// handleGet はファイル詳細取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := s.lookupFile(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", toFileResponse(f)))
	}
}

// handleDownloadURL はダウンロード用署名付きURL発行を処理するハンドラを返す。
func (s *Server) handleDownloadURL() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := s.lookupFile(c)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Pre-signed download URL generated successfully", gin.H{
			"presigned_url": s.objects.presignedURL(f.StorageKey),
			"filename":      f.OriginalFilename,
			"content_type":  nullStringPtr(f.MimeType),
		}))
	}
}

// handleDelete はファイル削除を処理するハンドラを返す。
// メタデータの論理削除のみを行い、ストレージ上の実体には触れない。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "File not found"))
			return
		}

		err = s.store.SoftDeleteFile(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "File not found"))
			return
		}
		if err != nil {
			log.Printf("ファイル削除エラー: %v", err)
			c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to delete file"))
			return
		}

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "File deleted successfully", nil))
	}
}

// handleValidate はファイル整合性検証を処理するハンドラを返す。
// リクエストで受け取ったチェックサムとサイズを登録時の値と比較する。
func (s *Server) handleValidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := s.lookupFile(c)
		if !ok {
			return
		}

		var req validateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, "Invalid request body"))
			return
		}

		checksumMatch := f.Checksum.Valid && req.Checksum == f.Checksum.String
		sizeMatch := f.FileSize.Valid && req.FileSize == f.FileSize.Int64

		c.JSON(http.StatusOK, response.Success(http.StatusOK, "Success", gin.H{
			"is_valid":         checksumMatch && sizeMatch,
			"checksum_match":   checksumMatch,
			"size_match":       sizeMatch,
			"current_checksum": req.Checksum,
			"current_size":     req.FileSize,
		}))
	}
}

// lookupFile はパスパラメータのIDからファイルを取得する共通処理。
// 見つからない場合はレスポンスを書き込んでfalseを返す。
func (s *Server) lookupFile(c *gin.Context) (File, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "File not found"))
		return File{}, false
	}

	f, err := s.store.GetFileByID(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, response.Failure(http.StatusNotFound, "File not found"))
		return File{}, false
	}
	if err != nil {
		log.Printf("ファイル取得エラー: %v", err)
		c.JSON(http.StatusInternalServerError, response.Failure(http.StatusInternalServerError, "Failed to retrieve file"))
		return File{}, false
	}
	return f, true
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
