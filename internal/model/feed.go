package model

import "time"

// FeedItemKind はフィード項目の種別を表す。
type FeedItemKind string

const (
	// FeedItemKindRequest はレビュー依頼（チケット）の項目。
	FeedItemKindRequest FeedItemKind = "REQUEST"
	// FeedItemKindReview はレビューの項目。
	FeedItemKindReview FeedItemKind = "REVIEW"
)

// FeedItem は閲覧者ごとのフィード項目。
// Kindに応じてTicketまたはReviewのどちらか一方が設定される。
type FeedItem struct {
	Kind      FeedItemKind
	ID        string
	AuthorID  string
	CreatedAt time.Time

	Ticket *Ticket
	Review *ReviewWithTicket

	// ViewerAlreadyResponded は閲覧者がこのチケットにレビュー済みかどうか（REQUESTのみ）。
	ViewerAlreadyResponded bool
	// AuthorIsBlocked は項目の作成者と閲覧者の間にブロック関係があるかどうか。
	AuthorIsBlocked bool
	// TicketAuthorIsBlocked はレビュー対象チケットの作成者とのブロック関係（REVIEWのみ）。
	TicketAuthorIsBlocked bool
}
