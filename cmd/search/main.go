// 検索サービスのエントリポイント。
// 各サービスから登録されたインデックスに対する横断検索・候補提示・統計を担当する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/minimam/internal/search"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("SEARCH_SERVICE_PORT")
	if port == "" {
		port = "8004"
	}

	server, err := search.NewServer(port)
	if err != nil {
		log.Fatalf("検索サーバーの初期化に失敗: %v", err)
	}

	log.Printf("検索サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("検索サービスの起動に失敗: %v", err)
	}
}
