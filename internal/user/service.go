// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/litreview/internal/media"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/repository"
)

// Service はユーザー管理のサービス層。
// プロフィールの参照・プロフィール画像の変更・退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	mediaFinder media.Finder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, mediaFinder media.Finder) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		mediaFinder: mediaFinder,
	}
}

// GetProfile はユーザー自身のプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return s.findUser(ctx, userID)
}

// SetProfilePhoto はプロフィール画像を置き換える。mediaIDがnilの場合は画像を外す。
// 画像は事前にアップロードした本人のものに限る。
func (s *Service) SetProfilePhoto(ctx context.Context, userID string, mediaID *string) (*model.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := media.EnsureOwned(ctx, s.mediaFinder, userID, mediaID); err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateProfileMedia(ctx, userID, mediaID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("プロフィール画像の更新に失敗しました: %w", err)
	}
	user.ProfileMediaID = mediaID

	slog.Info("profile photo updated",
		slog.String("user_id", userID),
		slog.Bool("cleared", mediaID == nil),
	)
	return user, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: follows, blocks, tickets, reviews, media）
// 退会したユーザーとのフォロー・ブロック関係は両方向とも消える。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
