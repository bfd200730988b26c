// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/litreview/internal/model"
	"github.com/lib/pq"
)

// リポジトリ層の境界を越えるセンチネルエラー。
// サービス層はerrors.Isで判定してAPIErrorに変換する。
var (
	// ErrDuplicate は一意制約違反（既に存在する）を表す。
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrBlockedRelationship は2ユーザー間にブロック関係が存在することを表す。
	ErrBlockedRelationship = errors.New("repository: blocked relationship")
	// ErrNotFound は更新・削除の対象行が存在しない（並行して削除された）ことを表す。
	ErrNotFound = errors.New("repository: record not found")
)

// uniqueViolation はPostgreSQLの一意制約違反エラーコード。
const uniqueViolation = "23505"

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername は大文字小文字を区別せずにユーザー名で検索する。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// UpdateProfileMedia はプロフィール画像を設定する。mediaIDがnilの場合は未設定に戻す。
	// ユーザーが存在しない場合はErrNotFoundを返す。
	UpdateProfileMedia(ctx context.Context, id string, mediaID *string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するfollows、blocks、tickets、reviews、mediaはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteOthersByUserID は指定ユーザーのセッションのうちkeepID以外を削除する。
	DeleteOthersByUserID(ctx context.Context, userID, keepID string) error
}

// RelationshipRepository はフォロー・ブロック関係の永続化インターフェース。
// ブロック作成時のフォロー削除はCreateBlock内で同一トランザクションとして実行する。
type RelationshipRepository interface {
	// CreateFollow はフォロー関係を作成する。
	// 同一トランザクション内でどちらかの方向のブロックを確認し、存在すればErrBlockedRelationshipを返す。
	// 既にフォロー済みの場合はErrDuplicateを返す。
	CreateFollow(ctx context.Context, followerID, followedID string) (*model.Follow, error)

	// DeleteFollow はフォロー関係を削除する。削除した場合はtrueを返す。
	DeleteFollow(ctx context.Context, followerID, followedID string) (bool, error)

	// CreateBlock はブロック関係を作成し、両方向のフォロー関係を削除する。
	// 2つの手順は同一トランザクションで実行され、削除したフォロー関係を結果に含める。
	// 既にブロック済みの場合はErrDuplicateを返す。
	CreateBlock(ctx context.Context, block *model.Block) (*model.BlockResult, error)

	// DeleteBlock はブロック関係を削除する。削除した場合はtrueを返す。
	// ブロック時に削除されたフォロー関係は復元しない。
	DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error)

	// ExistsBlockBetween は2ユーザー間にどちらかの方向のブロックが存在するかを返す。
	ExistsBlockBetween(ctx context.Context, userA, userB string) (bool, error)

	// ListFollowedIDs はユーザーがフォローしているユーザーIDの一覧を返す。
	ListFollowedIDs(ctx context.Context, userID string) ([]string, error)

	// ListBlockPartnerIDs はユーザーとどちらかの方向でブロック関係にあるユーザーIDの一覧を返す。
	ListBlockPartnerIDs(ctx context.Context, userID string) ([]string, error)

	// ListFollowing はユーザーのフォロー先をフォロー日時の降順で返す。
	ListFollowing(ctx context.Context, userID string) ([]model.FollowWithUser, error)

	// ListFollowers はユーザーのフォロワーをフォロー日時の降順で返す。
	ListFollowers(ctx context.Context, userID string) ([]model.FollowWithUser, error)

	// ListBlocked はユーザーがブロックしているユーザーをブロック日時の降順で返す。
	ListBlocked(ctx context.Context, userID string) ([]model.BlockWithUser, error)
}

// TicketRepository はチケットの永続化インターフェース。
type TicketRepository interface {
	// FindByID は指定IDのチケットを作成者名付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Ticket, error)

	// Create はチケットを作成する。
	Create(ctx context.Context, ticket *model.Ticket) error

	// CreateWithReview はチケットと作成者自身のレビューを同一トランザクションで作成する。
	CreateWithReview(ctx context.Context, ticket *model.Ticket, review *model.Review) error

	// Update はチケットのタイトル・説明・カバー画像を更新する。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, ticket *model.Ticket) error

	// Delete はチケットと紐づく全レビューを同一トランザクションで削除する。
	// 削除したレビュー数を返す。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) (int, error)

	// ListByAuthors は指定ユーザー群が作成したチケットを作成日時の降順で返す。
	ListByAuthors(ctx context.Context, authorIDs []string) ([]*model.Ticket, error)
}

// ReviewRepository はレビューの永続化インターフェース。
type ReviewRepository interface {
	// FindByID は指定IDのレビューを対象チケット情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ReviewWithTicket, error)

	// Create はレビューを作成する。同一チケットに同一ユーザーのレビューが存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, review *model.Review) error

	// Update はレビューの評価・見出し・本文を更新する。対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, review *model.Review) error

	// Delete は指定IDのレビューを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// ExistsByTicketAndAuthor は指定ユーザーがチケットにレビュー済みかを返す。
	ExistsByTicketAndAuthor(ctx context.Context, ticketID, authorID string) (bool, error)

	// ListReviewedTicketIDs はticketIDsのうち指定ユーザーがレビュー済みのチケットIDを返す。
	ListReviewedTicketIDs(ctx context.Context, authorID string, ticketIDs []string) ([]string, error)

	// ListForFeed はauthorIDsが書いたレビュー、またはticketOwnerIDのチケットへのレビューを
	// 作成日時の降順で返す。excludeAuthorIDsが書いたレビューは除外する。
	ListForFeed(ctx context.Context, authorIDs []string, ticketOwnerID string, excludeAuthorIDs []string) ([]*model.ReviewWithTicket, error)

	// ListByAuthor は指定ユーザーが書いたレビューを作成日時の降順で返す。
	ListByAuthor(ctx context.Context, authorID string) ([]*model.ReviewWithTicket, error)

	// ListReceived は指定ユーザーのチケットに他ユーザーが書いたレビューを作成日時の降順で返す。
	ListReceived(ctx context.Context, ticketOwnerID string) ([]*model.ReviewWithTicket, error)
}

// MediaRepository は画像の永続化インターフェース。
type MediaRepository interface {
	// FindByID は指定IDの画像を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Media, error)

	// Create は画像を保存する。
	Create(ctx context.Context, media *model.Media) error
}
