package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/litreview/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	// SetProfilePhoto はプロフィール画像を置き換える。mediaIDがnilの場合は画像を外す。
	SetProfilePhoto(ctx context.Context, userID string, mediaID *string) (*model.User, error)

	// Withdraw は退会処理を実行する。
	// セッションを削除した後にユーザーを削除し、関係・投稿・画像はCASCADEで消える。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はプロフィールとアカウント削除のHTTPハンドラー。
type UserHandler struct {
	service      UserServiceInterface
	cookieConfig AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。cookieConfigは退会時のセッションCookie削除に使う。
func NewUserHandler(service UserServiceInterface, cookieConfig AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service:      service,
		cookieConfig: cookieConfig,
	}
}

// Withdraw は閲覧者自身のアカウントを削除し、セッションCookieを失効させる。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	setSessionCookie(w, h.cookieConfig, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

type profilePhotoRequest struct {
	MediaID *string `json:"media_id"`
}

// Profile は閲覧者自身のプロフィールを返す。
// GET /api/account
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// SetProfilePhoto はアップロード済みの画像をプロフィール画像に設定する。
// media_idをnullにすると画像を外す。
// PUT /api/account/photo
func (h *UserHandler) SetProfilePhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req profilePhotoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.SetProfilePhoto(r.Context(), userID, req.MediaID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
