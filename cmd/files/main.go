// ファイルサービスのエントリポイント。
// アップロード用・ダウンロード用の署名付きURL発行とファイルメタデータの管理を担当する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/minimam/internal/files"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("FILES_SERVICE_PORT")
	if port == "" {
		port = "8002"
	}

	server, err := files.NewServer(port)
	if err != nil {
		log.Fatalf("ファイルサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ファイルサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ファイルサービスの起動に失敗: %v", err)
	}
}
