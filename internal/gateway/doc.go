// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 全クライアントトラフィックが通過する唯一の入口として、
// レートリミット→認証→バックエンドへのディスパッチの順で
// リクエストを処理する。認証に成功したリクエストには識別ヘッダーを
// 付与してassets/files/transcode/searchの各サービスへ転送する。
package gateway
