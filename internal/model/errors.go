// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, relationship, ticket, media, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSelfReference       = "SELF_REFERENCE"
	ErrCodeAlreadyFollowing    = "ALREADY_FOLLOWING"
	ErrCodeAlreadyBlocked      = "ALREADY_BLOCKED"
	ErrCodeAlreadyReviewed     = "ALREADY_REVIEWED"
	ErrCodeBlockedRelationship = "BLOCKED_RELATIONSHIP"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeTicketNotFound      = "TICKET_NOT_FOUND"
	ErrCodeReviewNotFound      = "REVIEW_NOT_FOUND"
	ErrCodeMediaNotFound       = "MEDIA_NOT_FOUND"
	ErrCodeNotOwner            = "NOT_OWNER"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeUsernameTaken       = "USERNAME_TAKEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidImage        = "INVALID_IMAGE"
	ErrCodeImageTooLarge       = "IMAGE_TOO_LARGE"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeFetchFailed         = "FETCH_FAILED"
)

// IsAlreadyExists は重複作成を表すエラーコードかどうかを判定する。
func IsAlreadyExists(code string) bool {
	switch code {
	case ErrCodeAlreadyFollowing, ErrCodeAlreadyBlocked, ErrCodeAlreadyReviewed, ErrCodeUsernameTaken:
		return true
	}
	return false
}

// NewSelfFollowError は自分自身をフォローしようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfReference,
		Message:  "自分自身をフォローすることはできません。",
		Category: "relationship",
		Action:   "フォローしたいユーザーを確認してください。",
	}
}

// NewSelfBlockError は自分自身をブロックしようとした場合のエラーを生成する。
func NewSelfBlockError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfReference,
		Message:  "自分自身をブロックすることはできません。",
		Category: "relationship",
		Action:   "ブロックしたいユーザーを確認してください。",
	}
}

// NewAlreadyFollowingError は既にフォロー済みの場合のエラーを生成する。
func NewAlreadyFollowingError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyFollowing,
		Message:  fmt.Sprintf("%s さんは既にフォローしています。", username),
		Category: "relationship",
		Action:   "フォロー一覧を確認してください。",
	}
}

// NewAlreadyBlockedError は既にブロック済みの場合のエラーを生成する。
func NewAlreadyBlockedError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyBlocked,
		Message:  fmt.Sprintf("%s さんは既にブロックしています。", username),
		Category: "relationship",
		Action:   "ブロック一覧を確認してください。",
	}
}

// NewBlockedRelationshipError はブロック関係により操作できない場合のエラーを生成する。
func NewBlockedRelationshipError() *APIError {
	return &APIError{
		Code:     ErrCodeBlockedRelationship,
		Message:  "ブロック関係があるため、この操作は実行できません。",
		Category: "relationship",
		Action:   "ブロックを解除してから再度お試しください。",
	}
}

// NewAlreadyReviewedError は同じチケットに既にレビュー済みの場合のエラーを生成する。
func NewAlreadyReviewedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyReviewed,
		Message:  "このチケットには既にレビューを投稿しています。",
		Category: "ticket",
		Action:   "投稿済みのレビューを編集してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "relationship",
		Action:   "ユーザー名またはユーザーIDを確認してください。",
	}
}

// NewTicketNotFoundError はチケットが見つからない場合のエラーを生成する。
func NewTicketNotFoundError(ticketID string) *APIError {
	return &APIError{
		Code:     ErrCodeTicketNotFound,
		Message:  fmt.Sprintf("指定されたチケットが見つかりません: %s", ticketID),
		Category: "ticket",
		Action:   "チケットIDを確認してください。",
	}
}

// NewReviewNotFoundError はレビューが見つからない場合のエラーを生成する。
func NewReviewNotFoundError(reviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  fmt.Sprintf("指定されたレビューが見つかりません: %s", reviewID),
		Category: "ticket",
		Action:   "レビューIDを確認してください。",
	}
}

// NewMediaNotFoundError は画像が見つからない場合のエラーを生成する。
func NewMediaNotFoundError(mediaID string) *APIError {
	return &APIError{
		Code:     ErrCodeMediaNotFound,
		Message:  fmt.Sprintf("指定された画像が見つかりません: %s", mediaID),
		Category: "media",
		Action:   "画像をアップロードし直してください。",
	}
}

// NewNotOwnerError は作成者以外が変更しようとした場合のエラーを生成する。
func NewNotOwnerError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  fmt.Sprintf("この%sを変更する権限がありません。", resource),
		Category: "ticket",
		Action:   "自分が作成した投稿のみ編集・削除できます。",
	}
}

// NewInvalidInputError は入力値が不正な場合のエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUsernameTakenError はユーザー名が既に使用されている場合のエラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("ユーザー名 %s は既に使用されています。", username),
		Category: "auth",
		Action:   "別のユーザー名を選んでください。",
	}
}

// NewInvalidCredentialsError はログイン情報が一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidImageError は画像として扱えないデータの場合のエラーを生成する。
func NewInvalidImageError(mimeType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("画像として認識できないファイルです: %s", mimeType),
		Category: "media",
		Action:   "PNG、JPEG、GIF、WebP形式の画像を指定してください。",
	}
}

// NewImageTooLargeError は画像サイズが上限を超えた場合のエラーを生成する。
func NewImageTooLargeError(maxSize int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限（%dバイト）を超えています。", maxSize),
		Category: "media",
		Action:   "サイズの小さい画像を指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトの画像URLを入力してください。",
	}
}

// NewFetchFailedError は画像取得失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("画像の取得に失敗しました: %s", reason),
		Category: "media",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}
