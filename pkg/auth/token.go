package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime はトークンの有効期間。発行から24時間で失効する。
const TokenLifetime = 24 * time.Hour

var (
	// ErrTokenExpired はトークンの有効期限が切れている場合のエラー。
	ErrTokenExpired = errors.New("auth: token has expired")
	// ErrTokenInvalid は署名不一致やパース失敗など、期限切れ以外の
	// あらゆるトークン不正を表すエラー。
	ErrTokenInvalid = errors.New("auth: token is invalid")
)

// Claims はJWTトークンのペイロード。識別情報とロールをサービス間で伝播する。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID int `json:"user_id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role Role `json:"role"`
}

// Identity はクレームをIdentityに変換する。
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

// GenerateToken は認証済みユーザーのIdentityからJWTトークンを発行する。
// HMAC-SHA256で署名し、有効期限は発行時刻から24時間。
func GenerateToken(secret string, id Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:   id.UserID,
		Username: id.Username,
		Role:     id.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// VerifyToken はトークンの署名と有効期限を検証し、クレームを返す。
// 期限切れはErrTokenExpired、それ以外の不正はErrTokenInvalidとして
// 呼び出し元に区別して報告する。
func VerifyToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("想定外の署名アルゴリズム: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Authorize はクレームのロールが要求ロールと一致するかを判定する。
// ロール階層は存在しない。adminであってもuser要求のルートは通らない。
func Authorize(claims *Claims, required Role) bool {
	if claims == nil {
		return false
	}
	return claims.Role == required
}
