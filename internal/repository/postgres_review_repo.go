package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/litreview/internal/model"
	"github.com/lib/pq"
)

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

const reviewSelect = `SELECT r.id, r.ticket_id, r.user_id, ru.username, r.rating, r.headline, r.body, r.created_at, r.updated_at,
		t.title, t.user_id, tu.username, t.cover_media_id
	FROM reviews r
	INNER JOIN users ru ON ru.id = r.user_id
	INNER JOIN tickets t ON t.id = r.ticket_id
	INNER JOIN users tu ON tu.id = t.user_id`

func scanReview(s rowScanner) (*model.ReviewWithTicket, error) {
	rv := &model.ReviewWithTicket{}
	var cover sql.NullString
	err := s.Scan(
		&rv.ID, &rv.TicketID, &rv.AuthorID, &rv.AuthorName, &rv.Rating, &rv.Headline, &rv.Body, &rv.CreatedAt, &rv.UpdatedAt,
		&rv.TicketTitle, &rv.TicketAuthorID, &rv.TicketAuthorName, &cover,
	)
	if err != nil {
		return nil, err
	}
	if cover.Valid {
		rv.TicketCoverMediaID = &cover.String
	}
	return rv, nil
}

func insertReview(ctx context.Context, db execer, rv *model.Review) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO reviews (id, ticket_id, user_id, rating, headline, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rv.ID, rv.TicketID, rv.AuthorID, rv.Rating, rv.Headline, rv.Body, rv.CreatedAt, rv.UpdatedAt,
	)
	return err
}

// FindByID は指定IDのレビューを対象チケット情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.ReviewWithTicket, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE r.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}
	return rv, nil
}

// Create はレビューを作成する。同一チケットに同一ユーザーのレビューが存在する場合はErrDuplicateを返す。
func (r *PostgresReviewRepo) Create(ctx context.Context, review *model.Review) error {
	err := insertReview(ctx, r.db, review)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("レビューの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はレビューの評価・見出し・本文を更新する。
func (r *PostgresReviewRepo) Update(ctx context.Context, review *model.Review) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reviews
		 SET rating = $2, headline = $3, body = $4, updated_at = $5
		 WHERE id = $1`,
		review.ID, review.Rating, review.Headline, review.Body, review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レビューの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("レビュー %s: %w", review.ID, ErrNotFound)
	}
	return nil
}

// Delete は指定IDのレビューを削除する。
func (r *PostgresReviewRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("レビューの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("レビュー %s: %w", id, ErrNotFound)
	}
	return nil
}

// ExistsByTicketAndAuthor は指定ユーザーがチケットにレビュー済みかを返す。
func (r *PostgresReviewRepo) ExistsByTicketAndAuthor(ctx context.Context, ticketID, authorID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE ticket_id = $1 AND user_id = $2)`,
		ticketID, authorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("レビュー有無の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// ListReviewedTicketIDs はticketIDsのうち指定ユーザーがレビュー済みのチケットIDを返す。
func (r *PostgresReviewRepo) ListReviewedTicketIDs(ctx context.Context, authorID string, ticketIDs []string) ([]string, error) {
	if len(ticketIDs) == 0 {
		return []string{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ticket_id FROM reviews WHERE user_id = $1 AND ticket_id = ANY($2::uuid[])`,
		authorID, pq.Array(ticketIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("レビュー済みチケットの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("チケットIDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レビュー済みチケットの走査に失敗しました: %w", err)
	}
	return ids, nil
}

// ListForFeed はauthorIDsが書いたレビュー、またはticketOwnerIDのチケットへのレビューを
// 作成日時の降順で返す。excludeAuthorIDsが書いたレビューは除外する。
func (r *PostgresReviewRepo) ListForFeed(ctx context.Context, authorIDs []string, ticketOwnerID string, excludeAuthorIDs []string) ([]*model.ReviewWithTicket, error) {
	if authorIDs == nil {
		authorIDs = []string{}
	}
	if excludeAuthorIDs == nil {
		excludeAuthorIDs = []string{}
	}
	return r.queryReviews(ctx,
		reviewSelect+`
		 WHERE (r.user_id = ANY($1::uuid[]) OR t.user_id = $2)
		   AND NOT (r.user_id = ANY($3::uuid[]))
		 ORDER BY r.created_at DESC, r.id DESC`,
		pq.Array(authorIDs), ticketOwnerID, pq.Array(excludeAuthorIDs),
	)
}

// ListByAuthor は指定ユーザーが書いたレビューを作成日時の降順で返す。
func (r *PostgresReviewRepo) ListByAuthor(ctx context.Context, authorID string) ([]*model.ReviewWithTicket, error) {
	return r.queryReviews(ctx,
		reviewSelect+`
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC, r.id DESC`,
		authorID,
	)
}

// ListReceived は指定ユーザーのチケットに他ユーザーが書いたレビューを作成日時の降順で返す。
func (r *PostgresReviewRepo) ListReceived(ctx context.Context, ticketOwnerID string) ([]*model.ReviewWithTicket, error) {
	return r.queryReviews(ctx,
		reviewSelect+`
		 WHERE t.user_id = $1 AND r.user_id <> $1
		 ORDER BY r.created_at DESC, r.id DESC`,
		ticketOwnerID,
	)
}

func (r *PostgresReviewRepo) queryReviews(ctx context.Context, query string, args ...any) ([]*model.ReviewWithTicket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	reviews := []*model.ReviewWithTicket{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("レビュー行の読み取りに失敗しました: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レビュー一覧の走査に失敗しました: %w", err)
	}
	return reviews, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
