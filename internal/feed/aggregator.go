// Package feed は閲覧者ごとのフィード（レビュー依頼とレビューの時系列マージ）を構築する。
package feed

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hitoshi/litreview/internal/metrics"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/relationship"
)

// VisibilityResolver は閲覧者のフォロー集合とブロック集合を算出するインターフェース。
type VisibilityResolver interface {
	Resolve(ctx context.Context, viewerID string) (*relationship.Visibility, error)
}

// TicketLister はフィード用にチケットを取得するインターフェース。
type TicketLister interface {
	ListByAuthors(ctx context.Context, authorIDs []string) ([]*model.Ticket, error)
}

// ReviewLister はフィード用にレビューを取得するインターフェース。
type ReviewLister interface {
	ListForFeed(ctx context.Context, authorIDs []string, ticketOwnerID string, excludeAuthorIDs []string) ([]*model.ReviewWithTicket, error)
	ListReviewedTicketIDs(ctx context.Context, authorID string, ticketIDs []string) ([]string, error)
}

// Feed は閲覧者向けに構築されたフィード。
type Feed struct {
	Items []model.FeedItem
	// HasAnyFollow は閲覧者が1人以上フォローしているか。
	// 空のフィードを「まだ誰もフォローしていない」と区別するために使う。
	HasAnyFollow bool
}

// Aggregator はフィードを構築する。
type Aggregator struct {
	resolver VisibilityResolver
	tickets  TicketLister
	reviews  ReviewLister
	metrics  metrics.MetricsCollector
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(
	resolver VisibilityResolver,
	tickets TicketLister,
	reviews ReviewLister,
	collector metrics.MetricsCollector,
) *Aggregator {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Aggregator{
		resolver: resolver,
		tickets:  tickets,
		reviews:  reviews,
		metrics:  collector,
	}
}

// Build は閲覧者のフィードを構築する。
//
// チケットは閲覧者自身とフォロー先（ブロック関係のある相手を除く）が作成したもの。
// レビューはそれに加えて、閲覧者のチケットに付いたものをフォロー有無に関係なく含める。
// どちらもブロック関係のある作成者の項目は除外する。
// 読み取りに1つでも失敗した場合は部分的な結果を返さずエラーにする。
func (a *Aggregator) Build(ctx context.Context, viewerID string) (*Feed, error) {
	start := time.Now()

	visibility, err := a.resolver.Resolve(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("可視性の算出に失敗しました: %w", err)
	}
	authorIDs := visibility.AuthorIDs()

	tickets, err := a.tickets.ListByAuthors(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("チケットの取得に失敗しました: %w", err)
	}
	reviews, err := a.reviews.ListForFeed(ctx, authorIDs, viewerID, visibility.BlockedIDs())
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}

	items := make([]model.FeedItem, 0, len(tickets)+len(reviews))
	for _, t := range tickets {
		if !visibility.IsVisible(t.AuthorID) {
			continue
		}
		items = append(items, model.FeedItem{
			Kind:      model.FeedItemKindRequest,
			ID:        t.ID,
			AuthorID:  t.AuthorID,
			CreatedAt: t.CreatedAt,
			Ticket:    t,
		})
	}
	for _, r := range reviews {
		onOwnTicket := r.TicketAuthorID == viewerID
		if visibility.IsBlocked(r.AuthorID) || !(onOwnTicket || visibility.IsVisible(r.AuthorID)) {
			continue
		}
		items = append(items, model.FeedItem{
			Kind:      model.FeedItemKindReview,
			ID:        r.ID,
			AuthorID:  r.AuthorID,
			CreatedAt: r.CreatedAt,
			Review:    r,
		})
	}

	SortItems(items)

	if err := a.enrich(ctx, viewerID, visibility, items); err != nil {
		return nil, err
	}

	a.metrics.RecordFeedBuild(time.Since(start), len(items))
	slog.Debug("feed built",
		slog.String("viewer_id", viewerID),
		slog.Int("items", len(items)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return &Feed{
		Items:        items,
		HasAnyFollow: visibility.HasAnyFollow(),
	}, nil
}

// enrich は閲覧者ごとの派生状態を各項目に設定する。
// レビュー済みかどうかはREQUEST項目のチケットIDをまとめて1回で問い合わせる。
func (a *Aggregator) enrich(ctx context.Context, viewerID string, visibility *relationship.Visibility, items []model.FeedItem) error {
	var ticketIDs []string
	for _, item := range items {
		if item.Kind == model.FeedItemKindRequest {
			ticketIDs = append(ticketIDs, item.ID)
		}
	}

	responded := make(map[string]bool, len(ticketIDs))
	if len(ticketIDs) > 0 {
		reviewed, err := a.reviews.ListReviewedTicketIDs(ctx, viewerID, ticketIDs)
		if err != nil {
			return fmt.Errorf("レビュー済みチケットの取得に失敗しました: %w", err)
		}
		for _, id := range reviewed {
			responded[id] = true
		}
	}

	for i := range items {
		item := &items[i]
		item.AuthorIsBlocked = visibility.IsBlocked(item.AuthorID)
		switch item.Kind {
		case model.FeedItemKindRequest:
			item.ViewerAlreadyResponded = responded[item.ID]
		case model.FeedItemKindReview:
			item.TicketAuthorIsBlocked = visibility.IsBlocked(item.Review.TicketAuthorID)
		}
	}
	return nil
}

// SortItems はフィード項目を作成日時の降順に並べる。
// 同時刻の場合はREQUESTをREVIEWより先にし、さらにIDの降順とする。
// IDはUUIDv7のため、ID降順は作成順の新しい順に一致する。
func SortItems(items []model.FeedItem) {
	slices.SortFunc(items, func(a, b model.FeedItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.Kind != b.Kind {
			if a.Kind == model.FeedItemKindRequest {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
