package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/litreview/internal/model"
)

// PostgresRelationshipRepo はPostgreSQLを使用したフォロー・ブロック関係リポジトリ。
type PostgresRelationshipRepo struct {
	db *sql.DB
}

// NewPostgresRelationshipRepo はPostgresRelationshipRepoを生成する。
func NewPostgresRelationshipRepo(db *sql.DB) *PostgresRelationshipRepo {
	return &PostgresRelationshipRepo{db: db}
}

const blockBetweenQuery = `SELECT EXISTS (
	SELECT 1 FROM blocks
	WHERE (blocker_id = $1 AND blocked_id = $2)
	   OR (blocker_id = $2 AND blocked_id = $1)
)`

// lockPairQuery は2ユーザーの行をID順にロックする。
// フォロー作成とブロック作成が同じ2人について同時に走った場合に、
// ブロック確認後にフォローが挿入されて両者が共存することを防ぐ。
// NO KEY UPDATEは外部キー参照のKEY SHAREと競合しないため、他ユーザーの書き込みは待たせない。
const lockPairQuery = `SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR NO KEY UPDATE`

func lockPair(ctx context.Context, tx *sql.Tx, userA, userB string) error {
	rows, err := tx.QueryContext(ctx, lockPairQuery, userA, userB)
	if err != nil {
		return fmt.Errorf("ユーザー行のロックに失敗しました: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ユーザー行のロックに失敗しました: %w", err)
	}
	return nil
}

// CreateFollow はフォロー関係を作成する。
// 2ユーザーの行ロック、ブロック確認、挿入を同一トランザクションで行う。
func (r *PostgresRelationshipRepo) CreateFollow(ctx context.Context, followerID, followedID string) (*model.Follow, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := lockPair(ctx, tx, followerID, followedID); err != nil {
		return nil, err
	}

	var blocked bool
	if err := tx.QueryRowContext(ctx, blockBetweenQuery, followerID, followedID).Scan(&blocked); err != nil {
		return nil, fmt.Errorf("ブロック関係の確認に失敗しました: %w", err)
	}
	if blocked {
		return nil, ErrBlockedRelationship
	}

	follow := &model.Follow{}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO follows (follower_id, followed_id)
		 VALUES ($1, $2)
		 ON CONFLICT (follower_id, followed_id) DO NOTHING
		 RETURNING follower_id, followed_id, created_at`,
		followerID, followedID,
	).Scan(&follow.FollowerID, &follow.FollowedID, &follow.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("フォローの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return follow, nil
}

// DeleteFollow はフォロー関係を削除する。削除した場合はtrueを返す。
func (r *PostgresRelationshipRepo) DeleteFollow(ctx context.Context, followerID, followedID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followed_id = $2`,
		followerID, followedID,
	)
	if err != nil {
		return false, fmt.Errorf("フォローの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// CreateBlock はブロック関係を作成し、同一トランザクションで両方向のフォロー関係を削除する。
// 途中で失敗した場合はどちらの変更も残らない。
func (r *PostgresRelationshipRepo) CreateBlock(ctx context.Context, block *model.Block) (*model.BlockResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := lockPair(ctx, tx, block.BlockerID, block.BlockedID); err != nil {
		return nil, err
	}

	created := model.Block{}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO blocks (blocker_id, blocked_id, reason)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (blocker_id, blocked_id) DO NOTHING
		 RETURNING blocker_id, blocked_id, reason, created_at`,
		block.BlockerID, block.BlockedID, block.Reason,
	).Scan(&created.BlockerID, &created.BlockedID, &created.Reason, &created.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("ブロックの作成に失敗しました: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`DELETE FROM follows
		 WHERE (follower_id = $1 AND followed_id = $2)
		    OR (follower_id = $2 AND followed_id = $1)
		 RETURNING follower_id, followed_id, created_at`,
		block.BlockerID, block.BlockedID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォロー関係の削除に失敗しました: %w", err)
	}
	removed := []model.Follow{}
	for rows.Next() {
		var f model.Follow
		if err := rows.Scan(&f.FollowerID, &f.FollowedID, &f.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("削除したフォロー行の読み取りに失敗しました: %w", err)
		}
		removed = append(removed, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("削除したフォロー行の走査に失敗しました: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return &model.BlockResult{Block: created, RemovedFollows: removed}, nil
}

// DeleteBlock はブロック関係を削除する。削除した場合はtrueを返す。
func (r *PostgresRelationshipRepo) DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`,
		blockerID, blockedID,
	)
	if err != nil {
		return false, fmt.Errorf("ブロックの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// ExistsBlockBetween は2ユーザー間にどちらかの方向のブロックが存在するかを返す。
func (r *PostgresRelationshipRepo) ExistsBlockBetween(ctx context.Context, userA, userB string) (bool, error) {
	var blocked bool
	if err := r.db.QueryRowContext(ctx, blockBetweenQuery, userA, userB).Scan(&blocked); err != nil {
		return false, fmt.Errorf("ブロック関係の確認に失敗しました: %w", err)
	}
	return blocked, nil
}

// ListFollowedIDs はユーザーがフォローしているユーザーIDの一覧を返す。
func (r *PostgresRelationshipRepo) ListFollowedIDs(ctx context.Context, userID string) ([]string, error) {
	return r.queryIDs(ctx,
		`SELECT followed_id FROM follows WHERE follower_id = $1`,
		userID,
	)
}

// ListBlockPartnerIDs はユーザーとどちらかの方向でブロック関係にあるユーザーIDの一覧を返す。
func (r *PostgresRelationshipRepo) ListBlockPartnerIDs(ctx context.Context, userID string) ([]string, error) {
	return r.queryIDs(ctx,
		`SELECT blocked_id FROM blocks WHERE blocker_id = $1
		 UNION
		 SELECT blocker_id FROM blocks WHERE blocked_id = $1`,
		userID,
	)
}

func (r *PostgresRelationshipRepo) queryIDs(ctx context.Context, query string, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーID一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ユーザーIDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザーID一覧の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// ListFollowing はユーザーのフォロー先をフォロー日時の降順で返す。
func (r *PostgresRelationshipRepo) ListFollowing(ctx context.Context, userID string) ([]model.FollowWithUser, error) {
	return r.queryFollows(ctx,
		`SELECT f.follower_id, f.followed_id, f.created_at, u.id, u.username
		 FROM follows f
		 INNER JOIN users u ON u.id = f.followed_id
		 WHERE f.follower_id = $1
		 ORDER BY f.created_at DESC, u.username ASC`,
		userID,
	)
}

// ListFollowers はユーザーのフォロワーをフォロー日時の降順で返す。
func (r *PostgresRelationshipRepo) ListFollowers(ctx context.Context, userID string) ([]model.FollowWithUser, error) {
	return r.queryFollows(ctx,
		`SELECT f.follower_id, f.followed_id, f.created_at, u.id, u.username
		 FROM follows f
		 INNER JOIN users u ON u.id = f.follower_id
		 WHERE f.followed_id = $1
		 ORDER BY f.created_at DESC, u.username ASC`,
		userID,
	)
}

func (r *PostgresRelationshipRepo) queryFollows(ctx context.Context, query, userID string) ([]model.FollowWithUser, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("フォロー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	follows := []model.FollowWithUser{}
	for rows.Next() {
		var f model.FollowWithUser
		if err := rows.Scan(&f.FollowerID, &f.FollowedID, &f.CreatedAt, &f.Counterpart.ID, &f.Counterpart.Username); err != nil {
			return nil, fmt.Errorf("フォロー行の読み取りに失敗しました: %w", err)
		}
		follows = append(follows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォロー一覧の走査に失敗しました: %w", err)
	}
	return follows, nil
}

// ListBlocked はユーザーがブロックしているユーザーをブロック日時の降順で返す。
func (r *PostgresRelationshipRepo) ListBlocked(ctx context.Context, userID string) ([]model.BlockWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.blocker_id, b.blocked_id, b.reason, b.created_at, u.id, u.username
		 FROM blocks b
		 INNER JOIN users u ON u.id = b.blocked_id
		 WHERE b.blocker_id = $1
		 ORDER BY b.created_at DESC, u.username ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ブロック一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	blocks := []model.BlockWithUser{}
	for rows.Next() {
		var b model.BlockWithUser
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &b.Reason, &b.CreatedAt, &b.Counterpart.ID, &b.Counterpart.Username); err != nil {
			return nil, fmt.Errorf("ブロック行の読み取りに失敗しました: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ブロック一覧の走査に失敗しました: %w", err)
	}
	return blocks, nil
}

// compile-time interface check
var _ RelationshipRepository = (*PostgresRelationshipRepo)(nil)
