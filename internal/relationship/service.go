// Package relationship はユーザー間のフォロー・ブロック関係と、
// それに基づく閲覧者ごとの可視性判定を提供する。
package relationship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/litreview/internal/metrics"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/repository"
)

// MaxBlockReasonLength はブロック理由の最大文字数。
const MaxBlockReasonLength = 200

// PreviewSize は関係一覧の概要で返す件数。
const PreviewSize = 3

// TextSanitizer はユーザー入力をプレーンテキストに無害化するインターフェース。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// Overview はフォロー・フォロワー・ブロックの概要（先頭数件と総数）。
type Overview struct {
	Following      []model.FollowWithUser
	FollowingCount int
	Followers      []model.FollowWithUser
	FollowerCount  int
	Blocked        []model.BlockWithUser
	BlockedCount   int
}

// Service はフォロー・ブロック関係のサービス層。
type Service struct {
	relRepo   repository.RelationshipRepository
	userRepo  repository.UserRepository
	sanitizer TextSanitizer
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	relRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	sanitizer TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		relRepo:   relRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		metrics:   collector,
	}
}

// Follow はviewerIDからtargetIDへのフォロー関係を作成する。
func (s *Service) Follow(ctx context.Context, viewerID, targetID string) (*model.Follow, error) {
	if viewerID == targetID {
		return nil, model.NewSelfFollowError()
	}
	target, err := s.findTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return s.follow(ctx, viewerID, target)
}

// FollowByUsername はユーザー名（大文字小文字を区別しない）で相手を特定してフォローする。
func (s *Service) FollowByUsername(ctx context.Context, viewerID, username string) (*model.Follow, error) {
	target, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}
	if target.ID == viewerID {
		return nil, model.NewSelfFollowError()
	}
	return s.follow(ctx, viewerID, target)
}

func (s *Service) follow(ctx context.Context, viewerID string, target *model.User) (*model.Follow, error) {
	follow, err := s.relRepo.CreateFollow(ctx, viewerID, target.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBlockedRelationship):
			return nil, model.NewBlockedRelationshipError()
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewAlreadyFollowingError(target.Username)
		}
		return nil, fmt.Errorf("フォローの作成に失敗しました: %w", err)
	}

	s.metrics.RecordFollowCreated()
	slog.Info("follow created",
		slog.String("follower_id", viewerID),
		slog.String("followed_id", target.ID),
	)
	return follow, nil
}

// Unfollow はフォロー関係を解除する。
// フォローしていなかった場合もエラーにせず Removed=false を返す。
func (s *Service) Unfollow(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error) {
	// UUIDとして解釈できないIDとの関係は存在しない
	if !isValidID(targetID) {
		return model.RemovalOutcome{}, nil
	}
	removed, err := s.relRepo.DeleteFollow(ctx, viewerID, targetID)
	if err != nil {
		return model.RemovalOutcome{}, fmt.Errorf("フォローの解除に失敗しました: %w", err)
	}
	if removed {
		s.metrics.RecordFollowsRemoved(metrics.RemovalReasonUnfollow, 1)
		slog.Info("follow removed",
			slog.String("follower_id", viewerID),
			slog.String("followed_id", targetID),
		)
	}
	return model.RemovalOutcome{Removed: removed}, nil
}

// Block はviewerIDからtargetIDへのブロック関係を作成する。
// 両者間のフォロー関係（両方向）は同一トランザクションで削除される。
func (s *Service) Block(ctx context.Context, viewerID, targetID, reason string) (*model.BlockResult, error) {
	if viewerID == targetID {
		return nil, model.NewSelfBlockError()
	}
	if utf8.RuneCountInString(reason) > MaxBlockReasonLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("ブロック理由は%d文字以内で入力してください", MaxBlockReasonLength))
	}
	target, err := s.findTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	block := &model.Block{
		BlockerID: viewerID,
		BlockedID: target.ID,
		Reason:    s.sanitizer.SanitizeText(reason),
	}
	result, err := s.relRepo.CreateBlock(ctx, block)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyBlockedError(target.Username)
		}
		return nil, fmt.Errorf("ブロックの作成に失敗しました: %w", err)
	}

	s.metrics.RecordBlockCreated()
	s.metrics.RecordFollowsRemoved(metrics.RemovalReasonBlock, len(result.RemovedFollows))
	slog.Info("block created",
		slog.String("blocker_id", viewerID),
		slog.String("blocked_id", target.ID),
		slog.Int("removed_follows", len(result.RemovedFollows)),
	)
	return result, nil
}

// Unblock はブロック関係を解除する。ブロック時に削除されたフォロー関係は復元しない。
func (s *Service) Unblock(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error) {
	if !isValidID(targetID) {
		return model.RemovalOutcome{}, nil
	}
	removed, err := s.relRepo.DeleteBlock(ctx, viewerID, targetID)
	if err != nil {
		return model.RemovalOutcome{}, fmt.Errorf("ブロックの解除に失敗しました: %w", err)
	}
	if removed {
		slog.Info("block removed",
			slog.String("blocker_id", viewerID),
			slog.String("blocked_id", targetID),
		)
	}
	return model.RemovalOutcome{Removed: removed}, nil
}

// ListFollowing はユーザーのフォロー先一覧を返す。
func (s *Service) ListFollowing(ctx context.Context, userID string) ([]model.FollowWithUser, error) {
	following, err := s.relRepo.ListFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フォロー一覧の取得に失敗しました: %w", err)
	}
	return following, nil
}

// ListFollowers はユーザーのフォロワー一覧を返す。
func (s *Service) ListFollowers(ctx context.Context, userID string) ([]model.FollowWithUser, error) {
	followers, err := s.relRepo.ListFollowers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フォロワー一覧の取得に失敗しました: %w", err)
	}
	return followers, nil
}

// ListBlocked はユーザーがブロックしている相手の一覧を返す。
func (s *Service) ListBlocked(ctx context.Context, userID string) ([]model.BlockWithUser, error) {
	blocked, err := s.relRepo.ListBlocked(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ブロック一覧の取得に失敗しました: %w", err)
	}
	return blocked, nil
}

// GetOverview はフォロー先・フォロワー・ブロック相手それぞれの先頭PreviewSize件と総数を返す。
func (s *Service) GetOverview(ctx context.Context, userID string) (*Overview, error) {
	following, err := s.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	followers, err := s.ListFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	blocked, err := s.ListBlocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Following:      following[:min(len(following), PreviewSize)],
		FollowingCount: len(following),
		Followers:      followers[:min(len(followers), PreviewSize)],
		FollowerCount:  len(followers),
		Blocked:        blocked[:min(len(blocked), PreviewSize)],
		BlockedCount:   len(blocked),
	}, nil
}

// findTarget は操作対象のユーザーを取得する。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) findTarget(ctx context.Context, targetID string) (*model.User, error) {
	if !isValidID(targetID) {
		return nil, model.NewUserNotFoundError()
	}
	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}
	return target, nil
}

func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
