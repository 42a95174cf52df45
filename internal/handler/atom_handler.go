package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/pagination"
	"github.com/hitoshi/diskuto-web/internal/security"
)

const untitledPost = "(untitled)"

// AtomHandler はユーザーの投稿をAtomフィードとして書き出すハンドラー。
type AtomHandler struct {
	service   ContentService
	sanitizer *security.Sanitizer
	logger    *slog.Logger
}

// NewAtomHandler はAtomHandlerを生成する。
func NewAtomHandler(service ContentService, sanitizer *security.Sanitizer, logger *slog.Logger) *AtomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AtomHandler{service: service, sanitizer: sanitizer, logger: logger}
}

// UserPosts はユーザーの最新の投稿をAtom形式で返す。
// コメントとプロフィール更新は含めない。
// GET /u/{uid}/feed.atom
func (h *AtomHandler) UserPosts(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	results, err := h.service.LoadUserPosts(r.Context(), userID, pagination.Window{})
	if err != nil {
		h.logger.Error("Atomフィードの読み込みに失敗しました",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, model.NewUpstreamFailedError())
		return
	}

	base := baseURL(r)
	name := h.service.GetDisplayName(r.Context(), userID)
	author := h.sanitizer.Text(name.DisplayName)
	userURL := base + "/u/" + userID.String() + "/"

	feed := &feeds.Feed{
		Id:     userURL,
		Title:  author + ": Posts",
		Link:   &feeds.Link{Href: userURL},
		Author: &feeds.Author{Name: author},
	}

	for _, it := range results.Items {
		post := it.Item.Post
		if post == nil {
			continue
		}

		created := time.UnixMilli(it.Item.TimestampMsUTC).UTC()
		if feed.Updated.Before(created) {
			feed.Updated = created
		}

		title := h.sanitizer.Text(post.Title)
		if title == "" {
			title = untitledPost
		}
		link := userURL + "i/" + it.Signature.String() + "/"

		feed.Items = append(feed.Items, &feeds.Item{
			Id:          link,
			Title:       title,
			Link:        &feeds.Link{Href: link},
			Author:      &feeds.Author{Name: author},
			Description: h.sanitizer.HTML(post.Body),
			Created:     created,
			Updated:     created,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		h.logger.Error("Atomフィードの生成に失敗しました",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, model.NewInternalError())
		return
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Write([]byte(atom))
}

// baseURL はリクエストから自サイトのオリジンを組み立てる。
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
