package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/ticket"
)

// TicketServiceInterface はチケット・レビューハンドラーが必要とするサービスインターフェース。
type TicketServiceInterface interface {
	CreateTicket(ctx context.Context, viewerID string, input ticket.TicketInput) (*model.Ticket, error)
	CreateTicketWithReview(ctx context.Context, viewerID string, ticketInput ticket.TicketInput, reviewInput ticket.ReviewInput) (*model.Ticket, *model.Review, error)
	GetTicket(ctx context.Context, viewerID, ticketID string) (*ticket.TicketDetail, error)
	UpdateTicket(ctx context.Context, viewerID, ticketID string, input ticket.TicketInput) (*model.Ticket, error)
	DeleteTicket(ctx context.Context, viewerID, ticketID string) (int, error)
	CreateReview(ctx context.Context, viewerID, ticketID string, input ticket.ReviewInput) (*model.Review, error)
	UpdateReview(ctx context.Context, viewerID, reviewID string, input ticket.ReviewInput) (*model.ReviewWithTicket, error)
	DeleteReview(ctx context.Context, viewerID, reviewID string) error
	ListPosts(ctx context.Context, viewerID string) (*ticket.Posts, error)
}

// TicketHandler はチケットとレビューのHTTPハンドラー。
type TicketHandler struct {
	service TicketServiceInterface
}

// NewTicketHandler はTicketHandlerを生成する。
func NewTicketHandler(service TicketServiceInterface) *TicketHandler {
	return &TicketHandler{service: service}
}

type ticketRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	CoverMediaID *string `json:"cover_media_id"`
}

type reviewRequest struct {
	Rating   *int   `json:"rating"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

type ticketWithReviewRequest struct {
	Ticket ticketRequest `json:"ticket"`
	Review reviewRequest `json:"review"`
}

type ticketResponse struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	CoverMediaID *string   `json:"cover_media_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ticketDetailResponse struct {
	ticketResponse
	ViewerAlreadyResponded bool `json:"viewer_already_responded"`
	IsOwner                bool `json:"is_owner"`
}

type reviewResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Rating     int       `json:"rating"`
	Headline   string    `json:"headline"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Ticket *ticketSummaryResponse `json:"ticket,omitempty"`
}

type ticketSummaryResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	AuthorID     string  `json:"author_id"`
	AuthorName   string  `json:"author_name"`
	CoverMediaID *string `json:"cover_media_id"`
}

type ticketWithReviewResponse struct {
	Ticket ticketResponse `json:"ticket"`
	Review reviewResponse `json:"review"`
}

type deleteTicketResponse struct {
	DeletedReviews int `json:"deleted_reviews"`
}

type postsResponse struct {
	Tickets  []ticketResponse `json:"tickets"`
	Reviews  []reviewResponse `json:"reviews"`
	Received []reviewResponse `json:"received"`
}

// CreateTicket はレビュー依頼を作成する。
// POST /api/tickets
func (h *TicketHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req ticketRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.CreateTicket(r.Context(), viewerID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTicketResponse(t))
}

// CreateTicketWithReview はチケットと自分のレビューを同時に作成する。
// POST /api/reviews
func (h *TicketHandler) CreateTicketWithReview(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req ticketWithReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reviewInput, ok := req.Review.toInput(w)
	if !ok {
		return
	}

	t, rv, err := h.service.CreateTicketWithReview(r.Context(), viewerID, req.Ticket.toInput(), reviewInput)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketWithReviewResponse{
		Ticket: toTicketResponse(t),
		Review: toReviewResponse(rv),
	})
}

// GetTicket はチケット詳細を返す。
// GET /api/tickets/{id}
func (h *TicketHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetTicket(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketDetailResponse{
		ticketResponse:         toTicketResponse(detail.Ticket),
		ViewerAlreadyResponded: detail.ViewerAlreadyResponded,
		IsOwner:                detail.IsOwner,
	})
}

// UpdateTicket は自分のチケットを置き換える。
// cover_media_idを省略またはnullにするとカバー画像は外れる。
// PUT /api/tickets/{id}
func (h *TicketHandler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req ticketRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.UpdateTicket(r.Context(), viewerID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(t))
}

// DeleteTicket は自分のチケットと紐づくレビューを削除する。
// DELETE /api/tickets/{id}
func (h *TicketHandler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.DeleteTicket(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteTicketResponse{DeletedReviews: n})
}

// CreateReview はチケットにレビューを投稿する。
// POST /api/tickets/{id}/reviews
func (h *TicketHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, ok := req.toInput(w)
	if !ok {
		return
	}

	rv, err := h.service.CreateReview(r.Context(), viewerID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(rv))
}

// UpdateReview は自分のレビューを更新する。
// PUT /api/reviews/{id}
func (h *TicketHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, ok := req.toInput(w)
	if !ok {
		return
	}

	rv, err := h.service.UpdateReview(r.Context(), viewerID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewWithTicketResponse(rv))
}

// DeleteReview は自分のレビューを削除する。
// DELETE /api/reviews/{id}
func (h *TicketHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), viewerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPosts は自分の投稿と受け取ったレビューを返す。
// GET /api/posts
func (h *TicketHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	posts, err := h.service.ListPosts(r.Context(), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := postsResponse{
		Tickets:  make([]ticketResponse, 0, len(posts.Tickets)),
		Reviews:  make([]reviewResponse, 0, len(posts.Reviews)),
		Received: make([]reviewResponse, 0, len(posts.Received)),
	}
	for _, t := range posts.Tickets {
		resp.Tickets = append(resp.Tickets, toTicketResponse(t))
	}
	for _, rv := range posts.Reviews {
		resp.Reviews = append(resp.Reviews, toReviewWithTicketResponse(rv))
	}
	for _, rv := range posts.Received {
		resp.Received = append(resp.Received, toReviewWithTicketResponse(rv))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (req ticketRequest) toInput() ticket.TicketInput {
	return ticket.TicketInput{
		Title:        req.Title,
		Description:  req.Description,
		CoverMediaID: req.CoverMediaID,
	}
}

// toInput は評価が省略されていれば400を書き込みfalseを返す。
func (req reviewRequest) toInput(w http.ResponseWriter) (ticket.ReviewInput, bool) {
	if req.Rating == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("評価を指定してください"))
		return ticket.ReviewInput{}, false
	}
	return ticket.ReviewInput{
		Rating:   *req.Rating,
		Headline: req.Headline,
		Body:     req.Body,
	}, true
}

func toTicketResponse(t *model.Ticket) ticketResponse {
	return ticketResponse{
		ID:           t.ID,
		AuthorID:     t.AuthorID,
		AuthorName:   t.AuthorName,
		Title:        t.Title,
		Description:  t.Description,
		CoverMediaID: t.CoverMediaID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toReviewResponse(rv *model.Review) reviewResponse {
	return reviewResponse{
		ID:         rv.ID,
		TicketID:   rv.TicketID,
		AuthorID:   rv.AuthorID,
		AuthorName: rv.AuthorName,
		Rating:     rv.Rating,
		Headline:   rv.Headline,
		Body:       rv.Body,
		CreatedAt:  rv.CreatedAt,
		UpdatedAt:  rv.UpdatedAt,
	}
}

func toReviewWithTicketResponse(rv *model.ReviewWithTicket) reviewResponse {
	resp := toReviewResponse(&rv.Review)
	resp.Ticket = &ticketSummaryResponse{
		ID:           rv.TicketID,
		Title:        rv.TicketTitle,
		AuthorID:     rv.TicketAuthorID,
		AuthorName:   rv.TicketAuthorName,
		CoverMediaID: rv.TicketCoverMediaID,
	}
	return resp
}
