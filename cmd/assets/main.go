// 資産サービスのエントリポイント。
// メディア資産のCRUD、タグ付け、ファイルサービスと連携したダウンロードURLの解決を担当する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/minimam/internal/assets"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("ASSETS_SERVICE_PORT")
	if port == "" {
		port = "8001"
	}

	server, err := assets.NewServer(port)
	if err != nil {
		log.Fatalf("資産サーバーの初期化に失敗: %v", err)
	}

	log.Printf("資産サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("資産サービスの起動に失敗: %v", err)
	}
}
