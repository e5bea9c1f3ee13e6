// Package model はドメインモデルを定義する。
package model

import "time"

// Account はストアフロント・管理画面の利用アカウントを表す。
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsAdmin      bool
	IsStaff      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionIdentity はリクエストに紐付く認証済みのアカウント情報。
// トークンの内容ではなく、リクエストごとにアカウントストアから再取得した値で構築する。
type SessionIdentity struct {
	AccountID int64
	Email     string
	FirstName string
	LastName  string
	IsAdmin   bool
	IsStaff   bool
	IsActive  bool
}

// NewSessionIdentity はアカウントからSessionIdentityを生成する。
// 無効化されたアカウントにはnilを返す。
func NewSessionIdentity(a *Account) *SessionIdentity {
	if a == nil || !a.IsActive {
		return nil
	}
	return &SessionIdentity{
		AccountID: a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		IsAdmin:   a.IsAdmin,
		IsStaff:   a.IsStaff,
		IsActive:  a.IsActive,
	}
}
