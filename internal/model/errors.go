// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, content, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidID         = "INVALID_ID"
	ErrCodeInvalidCursor     = "INVALID_CURSOR"
	ErrCodeItemNotFound      = "ITEM_NOT_FOUND"
	ErrCodeProfileNotFound   = "PROFILE_NOT_FOUND"
	ErrCodeUpstreamFailed    = "UPSTREAM_FAILED"
	ErrCodeBotDenied         = "BOT_DENIED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewInvalidIDError は不正なユーザーID・署名のエラーを生成する。
func NewInvalidIDError(kind, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("無効な%sです: %s", kind, value),
		Category: "validation",
		Action:   "base58形式の正しいIDを指定してください。",
	}
}

// NewInvalidCursorError は不正なページネーションカーソルのエラーを生成する。
func NewInvalidCursorError(name, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  fmt.Sprintf("無効なカーソル値です: %s=%s", name, value),
		Category: "validation",
		Action:   "before/afterにはミリ秒単位のタイムスタンプを指定してください。",
	}
}

// NewItemNotFoundError はアイテム未検出エラーを生成する。
func NewItemNotFoundError(userID UserID, signature Signature) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %s", ItemKey(userID, signature)),
		Category: "content",
		Action:   "ユーザーIDと署名を確認してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(userID UserID) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが存在しません: %s", userID),
		Category: "content",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewUpstreamFailedError はコンテンツソースからの一覧取得失敗エラーを生成する。
func NewUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "コンテンツサーバーからの取得に失敗しました。",
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBotDeniedError はnot-a-bot Cookieを持たないクライアントのページ送りを拒否するエラーを生成する。
func NewBotDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeBotDenied,
		Message:  "403 See robots.txt",
		Category: "validation",
		Action:   "Cookieを有効にしてページを再読み込みしてください。",
	}
}

// NewNotFoundError はルート未定義のエラーを生成する。
func NewNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("ページが見つかりません: %s", path),
		Category: "content",
		Action:   "URLを確認してください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
