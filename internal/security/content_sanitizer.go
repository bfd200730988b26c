// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はユーザーが投稿したチケット・レビュー・ブロック理由を
// 保存前に無害化する。bluemondayの許可リストポリシーを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は投稿テキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizer interface {
	// SanitizeText はすべてのHTMLタグを除去したプレーンテキストを返す。
	// タイトル、見出し、ブロック理由など1行テキストに使用する。前後の空白は除去する。
	SanitizeText(raw string) string

	// SanitizeRichText はレビュー本文やチケット説明向けに限られたタグのみ残したHTMLを返す。
	// 許可タグ: p, br, ul, ol, li, blockquote, strong, em, a
	// aタグのhrefはhttp/httpsのみ許可し、rel="nofollow noreferrer noopener"を付与する。
	SanitizeRichText(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのPolicyは生成後の並行利用が安全なため、起動時に1度だけ構築する。
type contentSanitizer struct {
	text *bluemonday.Policy
	rich *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("http", "https")
	rich.AllowRelativeURLs(false)
	rich.RequireNoFollowOnLinks(true)
	rich.RequireNoReferrerOnLinks(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)

	return &contentSanitizer{
		text: bluemonday.StrictPolicy(),
		rich: rich,
	}
}

// SanitizeText はすべてのHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyはエスケープ済みの文字列を返すため、JSONで返却する前に元の文字へ戻す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.text.Sanitize(raw)))
}

// SanitizeRichText は限られたタグのみ残したHTMLを返す。
func (s *contentSanitizer) SanitizeRichText(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}
