// トランスコードサービスのエントリポイント。
// 変換ジョブの作成・進捗管理・キャンセルと、バックグラウンドワーカーによる処理を担当する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/minimam/internal/transcode"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("TRANSCODE_SERVICE_PORT")
	if port == "" {
		port = "8003"
	}

	server, err := transcode.NewServer(port)
	if err != nil {
		log.Fatalf("トランスコードサーバーの初期化に失敗: %v", err)
	}

	log.Printf("トランスコードサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("トランスコードサービスの起動に失敗: %v", err)
	}
}
