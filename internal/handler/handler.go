// Package handler はHTTPハンドラーとルーティングを提供する。
// レスポンスはJSONで、HTMLへの描画は別のレンダラーが担当する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/diskuto-web/internal/content"
	"github.com/hitoshi/diskuto-web/internal/middleware"
	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/pagination"
)

// ContentService はハンドラーが必要とするコンテンツ集約レイヤーのインターフェース。
// content.Clientが実装する。
type ContentService interface {
	LoadHomePage(ctx context.Context, window pagination.Window) (content.PaginatedResults, error)
	LoadUserFeed(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error)
	LoadUserPosts(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error)
	GetItemPlus(ctx context.Context, userID model.UserID, signature model.Signature) *model.EnrichedItem
	GetComments(ctx context.Context, userID model.UserID, signature model.Signature, maxCount int) []model.EnrichedItem
	GetProfile(ctx context.Context, userID model.UserID) *model.ProfileRecord
	GetProfileUncached(ctx context.Context, userID model.UserID) *model.ProfileRecord
	GetDisplayName(ctx context.Context, userID model.UserID) model.DisplayName
}

// writeJSON はステータス200でJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidID, model.ErrCodeInvalidCursor:
		return http.StatusBadRequest
	case model.ErrCodeBotDenied:
		return http.StatusForbidden
	case model.ErrCodeItemNotFound, model.ErrCodeProfileNotFound, model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError はAPIErrorを対応するステータスコードで書き込む。
func writeError(w http.ResponseWriter, apiErr *model.APIError) {
	writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// userIDParam はパスパラメータ{uid}をUserIDとして解釈する。
func userIDParam(r *http.Request) (model.UserID, *model.APIError) {
	raw := chi.URLParam(r, "uid")
	userID, err := model.ParseUserID(raw)
	if err != nil {
		return model.UserID{}, model.NewInvalidIDError("ユーザーID", raw)
	}
	return userID, nil
}

// signatureParam はパスパラメータ{sig}をSignatureとして解釈する。
func signatureParam(r *http.Request) (model.Signature, *model.APIError) {
	raw := chi.URLParam(r, "sig")
	signature, err := model.ParseSignature(raw)
	if err != nil {
		return model.Signature{}, model.NewInvalidIDError("署名", raw)
	}
	return signature, nil
}

// parseWindow はクエリパラメータbefore/afterからページウィンドウを組み立てる。
// MaxCountは指定しないため、ページ種別ごとのデフォルト件数が使われる。
func parseWindow(r *http.Request) (pagination.Window, *model.APIError) {
	var window pagination.Window
	q := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  **int64
	}{
		{"before", &window.Before},
		{"after", &window.After},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return pagination.Window{}, model.NewInvalidCursorError(p.name, raw)
		}
		*p.dst = pagination.Ptr(v)
	}

	return window, nil
}
