package model

import "time"

// Follow はユーザー間の有向フォロー関係を表す。
// (FollowerID, FollowedID) の組は一意で、FollowerID != FollowedID。
type Follow struct {
	FollowerID string
	FollowedID string
	CreatedAt  time.Time
}

// Block はユーザー間の有向ブロック関係を表す。
// 関係自体は有向だが、可視性への影響は双方向に扱う。
type Block struct {
	BlockerID string
	BlockedID string
	Reason    string
	CreatedAt time.Time
}

// UserSummary は一覧表示用のユーザー情報。
type UserSummary struct {
	ID       string
	Username string
}

// FollowWithUser はフォロー関係と相手ユーザーの情報を結合したモデル。
// 相手はフォロー一覧ならフォロー先、フォロワー一覧ならフォロー元を指す。
type FollowWithUser struct {
	Follow
	Counterpart UserSummary
}

// BlockWithUser はブロック関係とブロック相手の情報を結合したモデル。
type BlockWithUser struct {
	Block
	Counterpart UserSummary
}

// BlockResult はブロック作成の結果。
// ブロック作成と同一トランザクションで削除されたフォロー関係を含む。
type BlockResult struct {
	Block          Block
	RemovedFollows []Follow
}

// RemovalOutcome はフォロー解除・ブロック解除の結果。
// 関係が存在しなかった場合もエラーにはせず Removed=false で返す。
type RemovalOutcome struct {
	Removed bool
}
