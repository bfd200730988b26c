package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/litreview/internal/model"
)

// SSRFValidator はURL取り込み時のSSRF防止機能のインターフェース。
type SSRFValidator interface {
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateURL(rawURL string) error
}

// URLFetcher はURLから画像のバイト列を取得する。
type URLFetcher struct {
	ssrfGuard SSRFValidator
	timeout   time.Duration
	maxSize   int64
}

// NewURLFetcher はURLFetcherの新しいインスタンスを生成する。
func NewURLFetcher(ssrfGuard SSRFValidator, timeout time.Duration, maxSize int64) *URLFetcher {
	return &URLFetcher{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// Fetch は指定URLから本文を取得する。
// URLが書籍ページなどのHTMLを返した場合は、ページ内の表紙画像（og:image等）を1回だけ辿って取得する。
// SSRF検証に失敗した場合はSSRF_BLOCKED、通信失敗や2xx以外はFETCH_FAILED、
// 上限を超える場合はIMAGE_TOO_LARGEを返す。
func (f *URLFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, contentType, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !isHTMLContentType(contentType) {
		return body, nil
	}

	imageURL := findCoverImageURL(body, rawURL)
	if imageURL == "" {
		return nil, model.NewFetchFailedError("ページに表紙画像が見つかりませんでした")
	}
	slog.Debug("画像取り込み: ページから表紙画像を検出", "url", rawURL, "image_url", imageURL)

	// 辿った先で再びHTMLが返っても、それ以上は辿らずにそのまま返す（画像判定で弾かれる）
	body, _, err = f.get(ctx, imageURL)
	return body, err
}

// get は1回のGETリクエストで本文とContent-Typeを取得する。
func (f *URLFetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
		slog.Warn("画像取り込み: SSRFブロック", "url", rawURL, "error", err)
		return nil, "", model.NewSSRFBlockedError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", model.NewFetchFailedError("リクエストを作成できませんでした")
	}
	req.Header.Set("User-Agent", "LitReview/1.0 Cover Importer")

	resp, err := f.ssrfGuard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		slog.Warn("画像取り込み: HTTPリクエスト失敗", "url", rawURL, "error", err)
		return nil, "", model.NewFetchFailedError("画像を取得できませんでした")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("画像取り込み: HTTPステータス異常", "url", rawURL, "status", resp.StatusCode)
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d が返されました", resp.StatusCode))
	}

	// 上限を1バイト超えて読み、超過を判定する
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("画像取り込み: レスポンス読み取り失敗", "url", rawURL, "error", err)
		return nil, "", model.NewFetchFailedError("レスポンスを読み取れませんでした")
	}
	if int64(len(body)) > f.maxSize {
		return nil, "", model.NewImageTooLargeError(f.maxSize)
	}

	return body, resp.Header.Get("Content-Type"), nil
}
