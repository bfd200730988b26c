package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/litreview/internal/model"
)

// multipartOverhead はmultipartの境界やヘッダー分として画像サイズ上限に上乗せするバイト数。
const multipartOverhead = 64 << 10

// MediaServiceInterface は画像ハンドラーが必要とするサービスインターフェース。
type MediaServiceInterface interface {
	MaxSize() int64
	Upload(ctx context.Context, ownerID string, data []byte) (*model.Media, error)
	ImportFromURL(ctx context.Context, ownerID, rawURL string) (*model.Media, error)
	Get(ctx context.Context, id string) (*model.Media, error)
}

// MediaHandler はカバー画像のHTTPハンドラー。
type MediaHandler struct {
	service MediaServiceInterface
}

// NewMediaHandler はMediaHandlerを生成する。
func NewMediaHandler(service MediaServiceInterface) *MediaHandler {
	return &MediaHandler{service: service}
}

type importMediaRequest struct {
	URL string `json:"url"`
}

type mediaResponse struct {
	ID        string    `json:"id"`
	MimeType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Upload はmultipartのimageフィールドで送られた画像を保存する。
// POST /api/media
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	maxSize := h.service.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	file, _, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(maxSize))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("imageフィールドに画像を指定してください"))
		return
	}
	defer file.Close()

	// 上限を1バイト超えて読めた場合はサービス層でIMAGE_TOO_LARGEになる
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	media, err := h.service.Upload(r.Context(), ownerID, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMediaResponse(media))
}

// Import はURLから画像を取り込んで保存する。
// POST /api/media/import
func (h *MediaHandler) Import(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req importMediaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("URLが空です"))
		return
	}

	media, err := h.service.ImportFromURL(r.Context(), ownerID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMediaResponse(media))
}

// Serve は保存された画像を返す。
// GET /media/{id}
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	media, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", media.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(media.Data)))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(media.Data); err != nil {
		slog.Debug("failed to write media", slog.String("error", err.Error()))
	}
}

func toMediaResponse(m *model.Media) mediaResponse {
	return mediaResponse{
		ID:        m.ID,
		MimeType:  m.MimeType,
		Size:      len(m.Data),
		URL:       "/media/" + m.ID,
		CreatedAt: m.CreatedAt,
	}
}
