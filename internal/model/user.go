package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID             string
	Username       string
	PasswordHash   string  // Argon2id（PHC形式）
	ProfileMediaID *string // 未設定の場合はnil
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
