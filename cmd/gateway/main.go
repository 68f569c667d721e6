// API Gatewayサービスのエントリポイント。
// JWT認証、ロールベースの認可、レート制限、バックエンドへのルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/nao1215/minimam/internal/gateway"
	"github.com/nao1215/minimam/pkg/observability"
)

func main() {
	_ = godotenv.Load()

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), os.Getenv("ENVIRONMENT")); err != nil {
		log.Printf("Sentryの初期化に失敗: %v", err)
	}
	defer observability.FlushSentry()

	port := os.Getenv("GATEWAY_SERVICE_PORT")
	if port == "" {
		port = "8000"
	}

	server, err := gateway.NewServer(port)
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}

	log.Printf("Gatewayサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}
