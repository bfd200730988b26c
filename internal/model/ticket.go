package model

import "time"

// Ticket はレビュー依頼（チケット）を表す。
type Ticket struct {
	ID           string
	AuthorID     string
	AuthorName   string // usersとJOINして取得する表示用ユーザー名
	Title        string
	Description  string
	CoverMediaID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Review はチケットに対するレビューを表す。
type Review struct {
	ID         string
	TicketID   string
	AuthorID   string
	AuthorName string
	Rating     int // 0..5
	Headline   string
	Body       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReviewWithTicket はレビューと対象チケットの概要を結合したモデル。
type ReviewWithTicket struct {
	Review
	TicketTitle        string
	TicketAuthorID     string
	TicketAuthorName   string
	TicketCoverMediaID *string
}

// レビュー評価の範囲。
const (
	MinRating = 0
	MaxRating = 5
)

// Media はアップロードまたはURLから取り込んだ画像を表す。
type Media struct {
	ID        string
	OwnerID   string
	Data      []byte
	MimeType  string
	CreatedAt time.Time
}
