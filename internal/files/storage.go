package files

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// presignExpiry は署名付きURLの有効期限（秒）。
const presignExpiry = 3600

// allowedExtensions はアップロードを許可するファイル拡張子の一覧。
var allowedExtensions = map[string]bool{
	"txt": true, "pdf": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"mp4": true, "avi": true, "mov": true,
	"mp3": true, "wav": true,
}

// objectStore はオブジェクトストレージ上のキー命名と
// 署名付きURLの生成を担う。
type objectStore struct {
	// endpoint はストレージのエンドポイントURL。
	endpoint string
	// bucket はバケット名。
	bucket string
}

// newObjectStore は環境変数からオブジェクトストレージの設定を読み込む。
func newObjectStore() *objectStore {
	endpoint := os.Getenv("STORAGE_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://storage.local"
	}
	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket == "" {
		bucket = "mini-mam-files"
	}
	return &objectStore{endpoint: endpoint, bucket: bucket}
}

// presignedURL は指定キーに対する期限付きURLを生成する。
func (o *objectStore) presignedURL(key string) string {
	return fmt.Sprintf("%s/%s/%s?expires=%d", o.endpoint, o.bucket, key, presignExpiry)
}

// allowedFile はファイル名の拡張子がアップロード許可対象かを判定する。
func allowedFile(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return false
	}
	return allowedExtensions[strings.ToLower(filename[i+1:])]
}

// unsafeChars はファイル名として安全でない文字のパターン。
var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitizeFilename はファイル名から安全でない文字を取り除く。
func sanitizeFilename(filename string) string {
	sanitized := unsafeChars.ReplaceAllString(filename, "_")
	return strings.Trim(sanitized, ". ")
}
