package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Role はユーザーのロールを表す。ロール階層は存在せず、完全一致でのみ判定する。
type Role string

const (
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザーロール。
	RoleUser Role = "user"
)

// ErrAuthenticationFailed はユーザー名またはパスワードが一致しない場合のエラー。
// どちらが誤っているかは呼び出し元に開示しない。
var ErrAuthenticationFailed = errors.New("auth: invalid username or password")

// Credential は認証情報ストアの1レコード。起動時に構築された後は不変。
type Credential struct {
	// Username はログインに使用するユーザー名。大文字小文字を区別する。
	Username string
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string
	// Role はユーザーのロール。
	Role Role
	// UserID はユーザーの一意識別子。
	UserID int
}

// Identity は認証に成功したユーザーの識別情報。
type Identity struct {
	// UserID はユーザーの一意識別子。
	UserID int `json:"user_id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role Role `json:"role"`
}

// CredentialStore はユーザー名から認証情報レコードを引く読み取り専用ストア。
// 現在は設定値から構築する固定マッピングだが、将来別のバックエンドに
// 差し替えられるようインターフェースとして定義する。
type CredentialStore interface {
	// Lookup はユーザー名に対応する認証情報を返す。存在しない場合はfalse。
	Lookup(username string) (Credential, bool)
}

// StaticStore は起動時に固定される、メモリ上の認証情報ストア。
type StaticStore struct {
	// records はユーザー名をキーとする認証情報のマップ。構築後は変更しない。
	records map[string]Credential
}

// NewStaticStore は認証情報レコードの一覧からストアを生成する。
func NewStaticStore(creds []Credential) *StaticStore {
	records := make(map[string]Credential, len(creds))
	for _, c := range creds {
		records[c.Username] = c
	}
	return &StaticStore{records: records}
}

// DefaultStore は設定値のパスワードからadmin/userの2固定レコードを持つ
// ストアを生成する。パスワードはbcryptでハッシュ化して保持する。
func DefaultStore(adminPassword, userPassword string) (*StaticStore, error) {
	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("adminパスワードのハッシュ化に失敗: %w", err)
	}
	userHash, err := bcrypt.GenerateFromPassword([]byte(userPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("userパスワードのハッシュ化に失敗: %w", err)
	}

	return NewStaticStore([]Credential{
		{Username: "admin", PasswordHash: string(adminHash), Role: RoleAdmin, UserID: 1},
		{Username: "user", PasswordHash: string(userHash), Role: RoleUser, UserID: 2},
	}), nil
}

// Lookup はユーザー名に対応する認証情報を返す。
func (s *StaticStore) Lookup(username string) (Credential, bool) {
	c, ok := s.records[username]
	return c, ok
}

// Authenticate はユーザー名とパスワードを検証し、成功時にIdentityを返す。
// ユーザーが存在しない場合とパスワード不一致の場合、いずれも
// ErrAuthenticationFailedを返す。
func Authenticate(store CredentialStore, username, password string) (Identity, error) {
	cred, ok := store.Lookup(username)
	if !ok {
		return Identity{}, ErrAuthenticationFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrAuthenticationFailed
	}

	return Identity{
		UserID:   cred.UserID,
		Username: cred.Username,
		Role:     cred.Role,
	}, nil
}
