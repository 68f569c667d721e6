// Package auth はmini-MAMプラットフォームの認証・認可機能を提供する。
//
// 認証情報ストア（ユーザー名→パスワードハッシュ→ロールの固定マッピング）、
// JWTトークンの発行・検証、ロールベースの認可判定を含む。
// gatewayサービスがログイン処理と保護ルートの検証に使用する。
package auth
