// Package httpclient はサービス間通信用のJSON HTTPクライアントを提供する。
//
// gatewayが付与するX-User-ID等の識別ヘッダーをコンテキスト経由で
// 下流サービスへ伝播する。assetsサービスがfilesサービスから
// ダウンロードURLを取得する際などに使用する。
package httpclient
