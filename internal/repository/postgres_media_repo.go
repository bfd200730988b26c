package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/litreview/internal/model"
)

// PostgresMediaRepo はPostgreSQLを使用した画像リポジトリ。
type PostgresMediaRepo struct {
	db *sql.DB
}

// NewPostgresMediaRepo はPostgresMediaRepoを生成する。
func NewPostgresMediaRepo(db *sql.DB) *PostgresMediaRepo {
	return &PostgresMediaRepo{db: db}
}

// FindByID は指定IDの画像を取得する。見つからない場合はnilを返す。
func (r *PostgresMediaRepo) FindByID(ctx context.Context, id string) (*model.Media, error) {
	m := &model.Media{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, data, mime_type, created_at FROM media WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.OwnerID, &m.Data, &m.MimeType, &m.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("画像の取得に失敗しました: %w", err)
	}
	return m, nil
}

// Create は画像を保存する。
func (r *PostgresMediaRepo) Create(ctx context.Context, m *model.Media) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO media (id, owner_id, data, mime_type, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.OwnerID, m.Data, m.MimeType, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("画像の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MediaRepository = (*PostgresMediaRepo)(nil)
