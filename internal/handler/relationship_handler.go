package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/relationship"
)

// RelationshipServiceInterface はフォロー・ブロックハンドラーが必要とするサービスインターフェース。
type RelationshipServiceInterface interface {
	Follow(ctx context.Context, viewerID, targetID string) (*model.Follow, error)
	FollowByUsername(ctx context.Context, viewerID, username string) (*model.Follow, error)
	Unfollow(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error)
	Block(ctx context.Context, viewerID, targetID, reason string) (*model.BlockResult, error)
	Unblock(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error)
	ListBlocked(ctx context.Context, userID string) ([]model.BlockWithUser, error)
	GetOverview(ctx context.Context, userID string) (*relationship.Overview, error)
}

// removal outcome のレスポンス値。
const (
	outcomeRemoved      = "removed"
	outcomeNotFollowing = "not_following"
	outcomeNotBlocked   = "not_blocked"
)

// RelationshipHandler はフォロー・ブロック関係のHTTPハンドラー。
type RelationshipHandler struct {
	service RelationshipServiceInterface
}

// NewRelationshipHandler はRelationshipHandlerを生成する。
func NewRelationshipHandler(service RelationshipServiceInterface) *RelationshipHandler {
	return &RelationshipHandler{service: service}
}

type followByUsernameRequest struct {
	Username string `json:"username"`
}

type blockRequest struct {
	Reason string `json:"reason"`
}

type followResponse struct {
	FollowerID string    `json:"follower_id"`
	FollowedID string    `json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type blockResponse struct {
	BlockerID      string           `json:"blocker_id"`
	BlockedID      string           `json:"blocked_id"`
	Reason         string           `json:"reason"`
	CreatedAt      time.Time        `json:"created_at"`
	RemovedFollows []followResponse `json:"removed_follows"`
}

type removalResponse struct {
	Removed bool   `json:"removed"`
	Outcome string `json:"outcome"`
}

type relatedUserResponse struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Since    time.Time `json:"since"`
	Reason   string    `json:"reason,omitempty"`
}

type overviewResponse struct {
	Following      []relatedUserResponse `json:"following"`
	FollowingCount int                   `json:"following_count"`
	Followers      []relatedUserResponse `json:"followers"`
	FollowerCount  int                   `json:"follower_count"`
	Blocked        []relatedUserResponse `json:"blocked"`
	BlockedCount   int                   `json:"blocked_count"`
}

// FollowByUsername はユーザー名を指定してフォローする。
// POST /api/follows
func (h *RelationshipHandler) FollowByUsername(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req followByUsernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("ユーザー名が空です"))
		return
	}

	follow, err := h.service.FollowByUsername(r.Context(), viewerID, username)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFollowResponse(*follow))
}

// Follow はユーザーIDを指定してフォローする。
// POST /api/users/{id}/follow
func (h *RelationshipHandler) Follow(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	follow, err := h.service.Follow(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFollowResponse(*follow))
}

// Unfollow はフォローを解除する。フォローしていなかった場合も200で結果を返す。
// DELETE /api/users/{id}/follow
func (h *RelationshipHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.Unfollow(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRemovalResponse(outcome, outcomeNotFollowing))
}

// Block はユーザーをブロックし、両方向のフォローを解除する。
// POST /api/users/{id}/block
func (h *RelationshipHandler) Block(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	// 理由は任意のため、ボディが空でも受け付ける
	var req blockRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	result, err := h.service.Block(r.Context(), viewerID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := blockResponse{
		BlockerID:      result.Block.BlockerID,
		BlockedID:      result.Block.BlockedID,
		Reason:         result.Block.Reason,
		CreatedAt:      result.Block.CreatedAt,
		RemovedFollows: make([]followResponse, 0, len(result.RemovedFollows)),
	}
	for _, f := range result.RemovedFollows {
		resp.RemovedFollows = append(resp.RemovedFollows, toFollowResponse(f))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Unblock はブロックを解除する。ブロック時に解除されたフォローは戻らない。
// DELETE /api/users/{id}/block
func (h *RelationshipHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.Unblock(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRemovalResponse(outcome, outcomeNotBlocked))
}

// ListBlocked はブロック中のユーザー一覧を返す。
// GET /api/blocks
func (h *RelationshipHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	blocks, err := h.service.ListBlocked(r.Context(), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockedResponses(blocks))
}

// Overview はフォロー・フォロワー・ブロックの概要を返す。
// GET /api/relationships
func (h *RelationshipHandler) Overview(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	ov, err := h.service.GetOverview(r.Context(), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overviewResponse{
		Following:      toFollowUserResponses(ov.Following),
		FollowingCount: ov.FollowingCount,
		Followers:      toFollowUserResponses(ov.Followers),
		FollowerCount:  ov.FollowerCount,
		Blocked:        toBlockedResponses(ov.Blocked),
		BlockedCount:   ov.BlockedCount,
	})
}

func toFollowResponse(f model.Follow) followResponse {
	return followResponse{
		FollowerID: f.FollowerID,
		FollowedID: f.FollowedID,
		CreatedAt:  f.CreatedAt,
	}
}

func toRemovalResponse(outcome model.RemovalOutcome, absent string) removalResponse {
	if outcome.Removed {
		return removalResponse{Removed: true, Outcome: outcomeRemoved}
	}
	return removalResponse{Removed: false, Outcome: absent}
}

func toFollowUserResponses(follows []model.FollowWithUser) []relatedUserResponse {
	out := make([]relatedUserResponse, 0, len(follows))
	for _, f := range follows {
		out = append(out, relatedUserResponse{
			UserID:   f.Counterpart.ID,
			Username: f.Counterpart.Username,
			Since:    f.CreatedAt,
		})
	}
	return out
}

func toBlockedResponses(blocks []model.BlockWithUser) []relatedUserResponse {
	out := make([]relatedUserResponse, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, relatedUserResponse{
			UserID:   b.Counterpart.ID,
			Username: b.Counterpart.Username,
			Since:    b.CreatedAt,
			Reason:   b.Reason,
		})
	}
	return out
}
