// Package media はチケットのカバー画像とプロフィール画像の保存と取得を提供する。
// 画像はPostgreSQLにバイト列として保存し、リサイズは行わない。
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/repository"
)

// DefaultMaxSize は画像の既定の最大サイズ（5MiB）。
const DefaultMaxSize int64 = 5 * 1024 * 1024

// allowedMimeTypes は保存を許可する画像形式。
// SVGはスクリプトを含み得るため受け付けない。
var allowedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Fetcher はURLから画像を取得するインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Service は画像の保存・取得のサービス層。
type Service struct {
	mediaRepo repository.MediaRepository
	fetcher   Fetcher
	maxSize   int64
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(mediaRepo repository.MediaRepository, fetcher Fetcher, maxSize int64) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{
		mediaRepo: mediaRepo,
		fetcher:   fetcher,
		maxSize:   maxSize,
	}
}

// MaxSize は受け付ける画像の最大バイト数を返す。
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// Upload はアップロードされた画像を検証して保存する。
// MIMEタイプはクライアントの申告ではなく内容から判定する。
func (s *Service) Upload(ctx context.Context, ownerID string, data []byte) (*model.Media, error) {
	if int64(len(data)) > s.maxSize {
		return nil, model.NewImageTooLargeError(s.maxSize)
	}
	if len(data) == 0 {
		return nil, model.NewInvalidImageError("")
	}

	mimeType := http.DetectContentType(data)
	if !allowedMimeTypes[mimeType] {
		return nil, model.NewInvalidImageError(mimeType)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("画像IDの生成に失敗しました: %w", err)
	}
	media := &model.Media{
		ID:        id.String(),
		OwnerID:   ownerID,
		Data:      data,
		MimeType:  mimeType,
		CreatedAt: time.Now(),
	}
	if err := s.mediaRepo.Create(ctx, media); err != nil {
		return nil, fmt.Errorf("画像の保存に失敗しました: %w", err)
	}

	slog.Info("media stored",
		slog.String("media_id", media.ID),
		slog.String("owner_id", ownerID),
		slog.String("mime_type", mimeType),
		slog.Int("size", len(data)),
	)
	return media, nil
}

// ImportFromURL はURLから画像を取得して保存する。
func (s *Service) ImportFromURL(ctx context.Context, ownerID, rawURL string) (*model.Media, error) {
	data, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return s.Upload(ctx, ownerID, data)
}

// Get は指定IDの画像を取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Media, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewMediaNotFoundError(id)
	}
	media, err := s.mediaRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("画像の取得に失敗しました: %w", err)
	}
	if media == nil {
		return nil, model.NewMediaNotFoundError(id)
	}
	return media, nil
}

// Finder は画像をIDで取得するインターフェース。
type Finder interface {
	FindByID(ctx context.Context, id string) (*model.Media, error)
}

// EnsureOwned はmediaIDの画像が存在し、ownerIDのものであることを確認する。
// mediaIDがnilの場合は何もしない。他人の画像は存在しないものとしてMEDIA_NOT_FOUNDを返す。
func EnsureOwned(ctx context.Context, finder Finder, ownerID string, mediaID *string) error {
	if mediaID == nil {
		return nil
	}
	if _, err := uuid.Parse(*mediaID); err != nil {
		return model.NewMediaNotFoundError(*mediaID)
	}
	media, err := finder.FindByID(ctx, *mediaID)
	if err != nil {
		return fmt.Errorf("画像の取得に失敗しました: %w", err)
	}
	if media == nil || media.OwnerID != ownerID {
		return model.NewMediaNotFoundError(*mediaID)
	}
	return nil
}
