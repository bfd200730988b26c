// Package ticket はレビュー依頼（チケット）とレビューの作成・更新・削除を提供する。
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/litreview/internal/media"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/repository"
)

// 入力値の上限。
const (
	MaxTitleLength       = 128
	MaxDescriptionLength = 2048
	MaxHeadlineLength    = 128
	MaxBodyLength        = 8192
)

// ContentSanitizer はユーザー投稿を保存前に無害化するインターフェース。
type ContentSanitizer interface {
	SanitizeText(raw string) string
	SanitizeRichText(raw string) string
}

// BlockChecker は2ユーザー間のブロック関係を確認するインターフェース。
type BlockChecker interface {
	ExistsBlockBetween(ctx context.Context, userA, userB string) (bool, error)
}

// TicketInput はチケットの作成・更新の入力。
type TicketInput struct {
	Title        string
	Description  string
	CoverMediaID *string
}

// ReviewInput はレビューの作成・更新の入力。
type ReviewInput struct {
	Rating   int
	Headline string
	Body     string
}

// TicketDetail はチケットと閲覧者ごとの派生状態。
type TicketDetail struct {
	Ticket                 *model.Ticket
	ViewerAlreadyResponded bool
	IsOwner                bool
}

// Posts は閲覧者自身の投稿一覧。
type Posts struct {
	Tickets []*model.Ticket
	Reviews []*model.ReviewWithTicket
	// Received は自分のチケットに他ユーザーが書いたレビュー。
	Received []*model.ReviewWithTicket
}

// Service はチケットとレビューのサービス層。
type Service struct {
	tickets   repository.TicketRepository
	reviews   repository.ReviewRepository
	media     repository.MediaRepository
	blocks    BlockChecker
	sanitizer ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tickets repository.TicketRepository,
	reviews repository.ReviewRepository,
	mediaRepo repository.MediaRepository,
	blocks BlockChecker,
	sanitizer ContentSanitizer,
) *Service {
	return &Service{
		tickets:   tickets,
		reviews:   reviews,
		media:     mediaRepo,
		blocks:    blocks,
		sanitizer: sanitizer,
	}
}

// CreateTicket はチケットを作成する。
func (s *Service) CreateTicket(ctx context.Context, viewerID string, input TicketInput) (*model.Ticket, error) {
	ticket, err := s.newTicket(ctx, viewerID, input)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("チケットの作成に失敗しました: %w", err)
	}

	slog.Info("ticket created",
		slog.String("ticket_id", ticket.ID),
		slog.String("author_id", viewerID),
	)
	return ticket, nil
}

// CreateTicketWithReview はチケットと作成者自身のレビューを同時に作成する。
// 片方だけが保存されることはない。
func (s *Service) CreateTicketWithReview(ctx context.Context, viewerID string, ticketInput TicketInput, reviewInput ReviewInput) (*model.Ticket, *model.Review, error) {
	ticket, err := s.newTicket(ctx, viewerID, ticketInput)
	if err != nil {
		return nil, nil, err
	}
	review, err := s.newReview(viewerID, ticket.ID, reviewInput)
	if err != nil {
		return nil, nil, err
	}

	if err := s.tickets.CreateWithReview(ctx, ticket, review); err != nil {
		return nil, nil, fmt.Errorf("チケットとレビューの作成に失敗しました: %w", err)
	}

	slog.Info("ticket created with review",
		slog.String("ticket_id", ticket.ID),
		slog.String("review_id", review.ID),
		slog.String("author_id", viewerID),
	)
	return ticket, review, nil
}

// GetTicket はチケットを取得する。
// 作成者とブロック関係にある閲覧者にはBLOCKED_RELATIONSHIPを返す。
func (s *Service) GetTicket(ctx context.Context, viewerID, ticketID string) (*TicketDetail, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	detail := &TicketDetail{Ticket: ticket, IsOwner: ticket.AuthorID == viewerID}
	if !detail.IsOwner {
		if err := s.ensureNotBlocked(ctx, viewerID, ticket.AuthorID); err != nil {
			return nil, err
		}
	}

	responded, err := s.reviews.ExistsByTicketAndAuthor(ctx, ticket.ID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("レビュー状況の取得に失敗しました: %w", err)
	}
	detail.ViewerAlreadyResponded = responded
	return detail, nil
}

// UpdateTicket はチケットを更新する。作成者以外はNOT_OWNERとなる。
func (s *Service) UpdateTicket(ctx context.Context, viewerID, ticketID string, input TicketInput) (*model.Ticket, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AuthorID != viewerID {
		return nil, model.NewNotOwnerError("チケット")
	}
	if err := validateTicketInput(input); err != nil {
		return nil, err
	}
	if err := s.ensureOwnMedia(ctx, viewerID, input.CoverMediaID); err != nil {
		return nil, err
	}

	ticket.Title = s.sanitizer.SanitizeText(input.Title)
	ticket.Description = s.sanitizer.SanitizeRichText(input.Description)
	ticket.CoverMediaID = input.CoverMediaID
	ticket.UpdatedAt = time.Now()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewTicketNotFoundError(ticketID)
		}
		return nil, fmt.Errorf("チケットの更新に失敗しました: %w", err)
	}
	return ticket, nil
}

// DeleteTicket はチケットと紐づく全レビューを削除し、削除したレビュー数を返す。
// 途中で失敗した場合は何も削除されない。
func (s *Service) DeleteTicket(ctx context.Context, viewerID, ticketID string) (int, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if ticket.AuthorID != viewerID {
		return 0, model.NewNotOwnerError("チケット")
	}

	removed, err := s.tickets.Delete(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, model.NewTicketNotFoundError(ticketID)
		}
		return 0, fmt.Errorf("チケットの削除に失敗しました: %w", err)
	}

	slog.Info("ticket deleted",
		slog.String("ticket_id", ticketID),
		slog.String("author_id", viewerID),
		slog.Int("reviews_removed", removed),
	)
	return removed, nil
}

// CreateReview はチケットにレビューを作成する。
func (s *Service) CreateReview(ctx context.Context, viewerID, ticketID string, input ReviewInput) (*model.Review, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AuthorID != viewerID {
		if err := s.ensureNotBlocked(ctx, viewerID, ticket.AuthorID); err != nil {
			return nil, err
		}
	}

	exists, err := s.reviews.ExistsByTicketAndAuthor(ctx, ticketID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("レビュー状況の取得に失敗しました: %w", err)
	}
	if exists {
		return nil, model.NewAlreadyReviewedError()
	}

	review, err := s.newReview(viewerID, ticketID, input)
	if err != nil {
		return nil, err
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		// 事前確認後に並行して作成された場合は一意制約で検出される
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyReviewedError()
		}
		return nil, fmt.Errorf("レビューの作成に失敗しました: %w", err)
	}

	slog.Info("review created",
		slog.String("review_id", review.ID),
		slog.String("ticket_id", ticketID),
		slog.String("author_id", viewerID),
	)
	return review, nil
}

// UpdateReview はレビューを更新する。作成者以外はNOT_OWNERとなる。
func (s *Service) UpdateReview(ctx context.Context, viewerID, reviewID string, input ReviewInput) (*model.ReviewWithTicket, error) {
	review, err := s.findReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.AuthorID != viewerID {
		return nil, model.NewNotOwnerError("レビュー")
	}
	if err := validateReviewInput(input); err != nil {
		return nil, err
	}

	review.Rating = input.Rating
	review.Headline = s.sanitizer.SanitizeText(input.Headline)
	review.Body = s.sanitizer.SanitizeRichText(input.Body)
	review.UpdatedAt = time.Now()

	if err := s.reviews.Update(ctx, &review.Review); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewReviewNotFoundError(reviewID)
		}
		return nil, fmt.Errorf("レビューの更新に失敗しました: %w", err)
	}
	return review, nil
}

// DeleteReview はレビューを削除する。作成者以外はNOT_OWNERとなる。
func (s *Service) DeleteReview(ctx context.Context, viewerID, reviewID string) error {
	review, err := s.findReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.AuthorID != viewerID {
		return model.NewNotOwnerError("レビュー")
	}
	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewReviewNotFoundError(reviewID)
		}
		return fmt.Errorf("レビューの削除に失敗しました: %w", err)
	}

	slog.Info("review deleted",
		slog.String("review_id", reviewID),
		slog.String("author_id", viewerID),
	)
	return nil
}

// ListPosts は閲覧者自身のチケット、レビュー、受け取ったレビューをそれぞれ新しい順に返す。
func (s *Service) ListPosts(ctx context.Context, viewerID string) (*Posts, error) {
	tickets, err := s.tickets.ListByAuthors(ctx, []string{viewerID})
	if err != nil {
		return nil, fmt.Errorf("チケット一覧の取得に失敗しました: %w", err)
	}
	reviews, err := s.reviews.ListByAuthor(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}
	received, err := s.reviews.ListReceived(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("受け取ったレビューの取得に失敗しました: %w", err)
	}
	return &Posts{Tickets: tickets, Reviews: reviews, Received: received}, nil
}

func (s *Service) newTicket(ctx context.Context, authorID string, input TicketInput) (*model.Ticket, error) {
	if err := validateTicketInput(input); err != nil {
		return nil, err
	}
	if err := s.ensureOwnMedia(ctx, authorID, input.CoverMediaID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("チケットIDの生成に失敗しました: %w", err)
	}
	now := time.Now()
	return &model.Ticket{
		ID:           id.String(),
		AuthorID:     authorID,
		Title:        s.sanitizer.SanitizeText(input.Title),
		Description:  s.sanitizer.SanitizeRichText(input.Description),
		CoverMediaID: input.CoverMediaID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) newReview(authorID, ticketID string, input ReviewInput) (*model.Review, error) {
	if err := validateReviewInput(input); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("レビューIDの生成に失敗しました: %w", err)
	}
	now := time.Now()
	return &model.Review{
		ID:        id.String(),
		TicketID:  ticketID,
		AuthorID:  authorID,
		Rating:    input.Rating,
		Headline:  s.sanitizer.SanitizeText(input.Headline),
		Body:      s.sanitizer.SanitizeRichText(input.Body),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Service) findTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, model.NewTicketNotFoundError(ticketID)
	}
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("チケットの取得に失敗しました: %w", err)
	}
	if ticket == nil {
		return nil, model.NewTicketNotFoundError(ticketID)
	}
	return ticket, nil
}

func (s *Service) findReview(ctx context.Context, reviewID string) (*model.ReviewWithTicket, error) {
	if _, err := uuid.Parse(reviewID); err != nil {
		return nil, model.NewReviewNotFoundError(reviewID)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}
	if review == nil {
		return nil, model.NewReviewNotFoundError(reviewID)
	}
	return review, nil
}

func (s *Service) ensureNotBlocked(ctx context.Context, viewerID, authorID string) error {
	blocked, err := s.blocks.ExistsBlockBetween(ctx, viewerID, authorID)
	if err != nil {
		return fmt.Errorf("ブロック関係の確認に失敗しました: %w", err)
	}
	if blocked {
		return model.NewBlockedRelationshipError()
	}
	return nil
}

// ensureOwnMedia はカバー画像が存在し、投稿者自身のものであることを確認する。
func (s *Service) ensureOwnMedia(ctx context.Context, ownerID string, mediaID *string) error {
	return media.EnsureOwned(ctx, s.media, ownerID, mediaID)
}

func validateTicketInput(input TicketInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return model.NewInvalidInputError("タイトルを入力してください")
	}
	if utf8.RuneCountInString(input.Title) > MaxTitleLength {
		return model.NewInvalidInputError(fmt.Sprintf("タイトルは%d文字以内で入力してください", MaxTitleLength))
	}
	if utf8.RuneCountInString(input.Description) > MaxDescriptionLength {
		return model.NewInvalidInputError(fmt.Sprintf("説明は%d文字以内で入力してください", MaxDescriptionLength))
	}
	return nil
}

func validateReviewInput(input ReviewInput) error {
	if input.Rating < model.MinRating || input.Rating > model.MaxRating {
		return model.NewInvalidInputError(fmt.Sprintf("評価は%dから%dの整数で入力してください", model.MinRating, model.MaxRating))
	}
	if strings.TrimSpace(input.Headline) == "" {
		return model.NewInvalidInputError("見出しを入力してください")
	}
	if utf8.RuneCountInString(input.Headline) > MaxHeadlineLength {
		return model.NewInvalidInputError(fmt.Sprintf("見出しは%d文字以内で入力してください", MaxHeadlineLength))
	}
	if utf8.RuneCountInString(input.Body) > MaxBodyLength {
		return model.NewInvalidInputError(fmt.Sprintf("本文は%d文字以内で入力してください", MaxBodyLength))
	}
	return nil
}
