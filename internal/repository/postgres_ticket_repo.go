package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/litreview/internal/model"
	"github.com/lib/pq"
)

// PostgresTicketRepo はPostgreSQLを使用したチケットリポジトリ。
type PostgresTicketRepo struct {
	db *sql.DB
}

// NewPostgresTicketRepo はPostgresTicketRepoを生成する。
func NewPostgresTicketRepo(db *sql.DB) *PostgresTicketRepo {
	return &PostgresTicketRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

const ticketSelect = `SELECT t.id, t.user_id, u.username, t.title, t.description, t.cover_media_id, t.created_at, t.updated_at
	FROM tickets t
	INNER JOIN users u ON u.id = t.user_id`

func scanTicket(s rowScanner) (*model.Ticket, error) {
	t := &model.Ticket{}
	var cover sql.NullString
	if err := s.Scan(&t.ID, &t.AuthorID, &t.AuthorName, &t.Title, &t.Description, &cover, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if cover.Valid {
		t.CoverMediaID = &cover.String
	}
	return t, nil
}

// FindByID は指定IDのチケットを作成者名付きで取得する。見つからない場合はnilを返す。
func (r *PostgresTicketRepo) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, ticketSelect+` WHERE t.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チケットの取得に失敗しました: %w", err)
	}
	return t, nil
}

// Create はチケットを作成する。
func (r *PostgresTicketRepo) Create(ctx context.Context, ticket *model.Ticket) error {
	if err := insertTicket(ctx, r.db, ticket); err != nil {
		return fmt.Errorf("チケットの作成に失敗しました: %w", err)
	}
	return nil
}

// CreateWithReview はチケットと作成者自身のレビューを同一トランザクションで作成する。
func (r *PostgresTicketRepo) CreateWithReview(ctx context.Context, ticket *model.Ticket, review *model.Review) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := insertTicket(ctx, tx, ticket); err != nil {
		return fmt.Errorf("チケットの作成に失敗しました: %w", err)
	}
	if err := insertReview(ctx, tx, review); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("レビューの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// execer は*sql.DBと*sql.Txの共通インターフェース。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTicket(ctx context.Context, db execer, t *model.Ticket) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tickets (id, user_id, title, description, cover_media_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.AuthorID, t.Title, t.Description, t.CoverMediaID, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// Update はチケットのタイトル・説明・カバー画像を更新する。
func (r *PostgresTicketRepo) Update(ctx context.Context, ticket *model.Ticket) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tickets
		 SET title = $2, description = $3, cover_media_id = $4, updated_at = $5
		 WHERE id = $1`,
		ticket.ID, ticket.Title, ticket.Description, ticket.CoverMediaID, ticket.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("チケットの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("チケット %s: %w", ticket.ID, ErrNotFound)
	}
	return nil
}

// Delete はチケットと紐づく全レビューを同一トランザクションで削除する。
// 削除したレビュー数を返す。
func (r *PostgresTicketRepo) Delete(ctx context.Context, id string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE ticket_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("レビューの削除に失敗しました: %w", err)
	}
	reviewsRemoved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}

	result, err = tx.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("チケットの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return 0, fmt.Errorf("チケット %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return int(reviewsRemoved), nil
}

// ListByAuthors は指定ユーザー群が作成したチケットを作成日時の降順で返す。
func (r *PostgresTicketRepo) ListByAuthors(ctx context.Context, authorIDs []string) ([]*model.Ticket, error) {
	if len(authorIDs) == 0 {
		return []*model.Ticket{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		ticketSelect+`
		 WHERE t.user_id = ANY($1::uuid[])
		 ORDER BY t.created_at DESC, t.id DESC`,
		pq.Array(authorIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("チケット一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	tickets := []*model.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("チケット行の読み取りに失敗しました: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チケット一覧の走査に失敗しました: %w", err)
	}
	return tickets, nil
}

// compile-time interface check
var _ TicketRepository = (*PostgresTicketRepo)(nil)
