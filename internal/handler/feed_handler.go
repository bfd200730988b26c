package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/litreview/internal/feed"
	"github.com/hitoshi/litreview/internal/model"
)

// FeedBuilder はフィードハンドラーが必要とするインターフェース。
type FeedBuilder interface {
	Build(ctx context.Context, viewerID string) (*feed.Feed, error)
}

// FeedHandler は閲覧者ごとのフィードを返すHTTPハンドラー。
type FeedHandler struct {
	builder FeedBuilder
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(builder FeedBuilder) *FeedHandler {
	return &FeedHandler{builder: builder}
}

type feedItemResponse struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`

	Ticket *ticketResponse `json:"ticket,omitempty"`
	Review *reviewResponse `json:"review,omitempty"`

	ViewerAlreadyResponded bool `json:"viewer_already_responded"`
	AuthorIsBlocked        bool `json:"author_is_blocked"`
	TicketAuthorIsBlocked  bool `json:"ticket_author_is_blocked"`
}

type feedResponse struct {
	Items        []feedItemResponse `json:"items"`
	HasAnyFollow bool               `json:"has_any_follow"`
}

// GetFeed は閲覧者のフィードを新しい順に返す。
// GET /api/feed
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	f, err := h.builder.Build(r.Context(), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := feedResponse{
		Items:        make([]feedItemResponse, 0, len(f.Items)),
		HasAnyFollow: f.HasAnyFollow,
	}
	for _, item := range f.Items {
		resp.Items = append(resp.Items, toFeedItemResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toFeedItemResponse(item model.FeedItem) feedItemResponse {
	resp := feedItemResponse{
		Kind:                   string(item.Kind),
		ID:                     item.ID,
		AuthorID:               item.AuthorID,
		CreatedAt:              item.CreatedAt,
		ViewerAlreadyResponded: item.ViewerAlreadyResponded,
		AuthorIsBlocked:        item.AuthorIsBlocked,
		TicketAuthorIsBlocked:  item.TicketAuthorIsBlocked,
	}
	if item.Ticket != nil {
		t := toTicketResponse(item.Ticket)
		resp.Ticket = &t
	}
	if item.Review != nil {
		rv := toReviewWithTicketResponse(item.Review)
		resp.Review = &rv
	}
	return resp
}
