// Package cleanup は不要データの自動削除ジョブを提供する。
// 期限切れのセッションと、チケットのカバーにもプロフィール画像にも使われていない古い画像を
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at < now()`

	// アップロード直後でまだ参照されていない画像を消さないよう、作成からOrphanTTL経過したものだけを対象にする
	deleteOrphanMediaQuery = `
		DELETE FROM media m
		WHERE m.created_at < now() - $1::interval
		  AND NOT EXISTS (SELECT 1 FROM tickets t WHERE t.cover_media_id = m.id)
		  AND NOT EXISTS (SELECT 1 FROM users u WHERE u.profile_media_id = m.id)`
)

// CleanupJob は期限切れセッションと孤立画像の削除ジョブ。
// 冪等であり、何度実行しても結果は変わらない。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	OrphanTTL time.Duration // 孤立画像を残す期間（デフォルト: 24時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:        db,
		logger:    logger,
		OrphanTTL: 24 * time.Hour,
	}
}

// Result は1回の実行で削除した件数。
type Result struct {
	ExpiredSessions int64
	OrphanMedia     int64
}

// Run は期限切れセッションと孤立画像を削除する。
// 最初の削除が失敗した場合は後続を実行せずにエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	n, err := j.exec(ctx, "expired_sessions", deleteExpiredSessionsQuery)
	if err != nil {
		return res, err
	}
	res.ExpiredSessions = n

	n, err = j.exec(ctx, "orphan_media", deleteOrphanMediaQuery, formatInterval(j.OrphanTTL))
	if err != nil {
		return res, err
	}
	res.OrphanMedia = n

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", res.ExpiredSessions),
		slog.Int64("orphan_media", res.OrphanMedia),
		slog.Duration("orphan_ttl", j.OrphanTTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}

func (j *CleanupJob) exec(ctx context.Context, target, query string, args ...any) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%sの削除に失敗: %w", target, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%sの削除件数の取得に失敗: %w", target, err)
	}
	return n, nil
}

// formatInterval はPostgreSQLのinterval型にキャストできる秒数表現を返す。
func formatInterval(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d/time.Second))
}
