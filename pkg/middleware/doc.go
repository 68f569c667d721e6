// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークン認証、ルートバケット単位のレートリミット、
// パニックリカバリ、CORS設定など、gatewayと各サービスで共通して
// 使用するミドルウェアを含む。
package middleware
