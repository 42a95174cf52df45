// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/diskuto-web/internal/model"
)

const (
	// ViewerCookieName は閲覧者のユーザーIDを保持するCookie名。
	ViewerCookieName = "viewAs"

	// NotABotCookieName はブラウザであることを示すCookie名。
	// クローラーはCookieを返さないため、ページ送りの可否判定に使う。
	NotABotCookieName = "z"

	notABotCookieValue  = "!"
	notABotCookieMaxAge = 365 * 24 * time.Hour
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	viewerContextKey    = contextKey("viewer")
	notABotContextKey   = contextKey("not_a_bot")
	requestIDContextKey = contextKey("request_id")
)

// NewViewerMiddleware はviewAs Cookieから閲覧者のユーザーIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または値が不正な場合は匿名の閲覧者として扱う。
func NewViewerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(ViewerCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			viewer, err := model.ParseUserID(cookie.Value)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithViewer(r.Context(), viewer)))
		})
	}
}

// ViewerFromContext はリクエストコンテキストから閲覧者のユーザーIDを取得する。
func ViewerFromContext(ctx context.Context) (model.UserID, bool) {
	viewer, ok := ctx.Value(viewerContextKey).(model.UserID)
	if !ok || viewer.IsZero() {
		return model.UserID{}, false
	}
	return viewer, true
}

// ContextWithViewer はコンテキストに閲覧者のユーザーIDを注入する。
func ContextWithViewer(ctx context.Context, viewer model.UserID) context.Context {
	return context.WithValue(ctx, viewerContextKey, viewer)
}

// NewNotABotMiddleware はリクエストがnot-a-bot Cookieを持つかどうかを記録し、
// すべてのレスポンスに同Cookieを付与するミドルウェアを返す。
func NewNotABotMiddleware(secure bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(NotABotCookieName)
			hasCookie := err == nil && cookie.Value == notABotCookieValue

			http.SetCookie(w, &http.Cookie{
				Name:     NotABotCookieName,
				Value:    notABotCookieValue,
				Path:     "/",
				MaxAge:   int(notABotCookieMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := context.WithValue(r.Context(), notABotContextKey, hasCookie)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HasNotABotCookie はリクエストがnot-a-bot Cookieを持っていたかを返す。
// NewNotABotMiddlewareを通過したリクエストでのみ有効。
func HasNotABotCookie(ctx context.Context) bool {
	has, _ := ctx.Value(notABotContextKey).(bool)
	return has
}
