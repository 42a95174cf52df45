package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/diskuto-web/internal/content"
	"github.com/hitoshi/diskuto-web/internal/middleware"
	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/pagination"
)

const homePageTitle = "Home Page"

// PageHandler はページ単位のJSONを返すハンドラー。
type PageHandler struct {
	service ContentService
	logger  *slog.Logger
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(service ContentService, logger *slog.Logger) *PageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageHandler{service: service, logger: logger}
}

// --- レスポンス型 ---

// pageResponse はアイテム一覧ページのレスポンス。
// Endはbefore指定で1件も見つからなかった（最後のページを過ぎた）ことを表す。
type pageResponse struct {
	Title      string               `json:"title"`
	User       *model.DisplayName   `json:"user,omitempty"`
	Items      []model.EnrichedItem `json:"items"`
	Pagination pagination.Cursor    `json:"pagination"`
	End        bool                 `json:"end,omitempty"`
}

// profileResponse はプロフィールページのレスポンス。
type profileResponse struct {
	Title   string              `json:"title"`
	UserID  model.UserID        `json:"user_id"`
	User    model.DisplayName   `json:"user"`
	Profile model.ProfileRecord `json:"profile"`
}

// itemPageResponse はアイテムページのレスポンス。コメントは古い順。
type itemPageResponse struct {
	Title    string               `json:"title"`
	Item     model.EnrichedItem   `json:"item"`
	Comments []model.EnrichedItem `json:"comments"`
	Editable bool                 `json:"editable"`
}

// itemFragmentResponse はアイテム単体の断片レスポンス。
type itemFragmentResponse struct {
	Item     model.EnrichedItem `json:"item"`
	Editable bool               `json:"editable"`
}

// Root は閲覧者がいればそのフィードへ、いなければホームページへリダイレクトする。
// GET /
func (h *PageHandler) Root(w http.ResponseWriter, r *http.Request) {
	if viewer, ok := middleware.ViewerFromContext(r.Context()); ok {
		http.Redirect(w, r, "/u/"+viewer.String()+"/feed", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/home", http.StatusFound)
}

// Home はホームページを返す。
// GET /home?before=&after=
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	window, apiErr := parseWindow(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	results, err := h.service.LoadHomePage(r.Context(), window)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}

	h.writePage(w, r, homePageTitle, nil, window, results)
}

// UserPosts はユーザー自身のアイテム一覧を返す。
// GET /u/{uid}/?before=&after=
func (h *PageHandler) UserPosts(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	window, apiErr := parseWindow(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	results, err := h.service.LoadUserPosts(r.Context(), userID, window)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}

	name := h.service.GetDisplayName(r.Context(), userID)
	h.writePage(w, r, name.DisplayName+": Posts", &name, window, results)
}

// UserFeed はユーザーがフォローしているユーザーのアイテム一覧を返す。
// クローラーによる無限のページ送りを避けるため、カーソル付きのリクエストには
// not-a-bot Cookieを要求する。
// GET /u/{uid}/feed?before=&after=
func (h *PageHandler) UserFeed(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	window, apiErr := parseWindow(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	if (window.Before != nil || window.After != nil) && !middleware.HasNotABotCookie(r.Context()) {
		writeError(w, model.NewBotDeniedError())
		return
	}

	results, err := h.service.LoadUserFeed(r.Context(), userID, window)
	if err != nil {
		h.upstreamFailed(w, r, err)
		return
	}

	name := h.service.GetDisplayName(r.Context(), userID)
	h.writePage(w, r, name.DisplayName+": Feed", &name, window, results)
}

// Profile はユーザーのプロフィールを返す。
// 閲覧者本人のプロフィールは編集直後の可能性があるため、キャッシュを使わずに取得する。
// GET /u/{uid}/profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	var profile *model.ProfileRecord
	if isViewer(r, userID) {
		profile = h.service.GetProfileUncached(r.Context(), userID)
	} else {
		profile = h.service.GetProfile(r.Context(), userID)
	}
	if profile == nil {
		writeError(w, model.NewProfileNotFoundError(userID))
		return
	}

	name := model.ResolveDisplayName(userID, profile)
	writeJSON(w, profileResponse{
		Title:   name.DisplayName + ": Profile",
		UserID:  userID,
		User:    name,
		Profile: *profile,
	})
}

// Item はアイテムとそのコメントを返す。
// GET /u/{uid}/i/{sig}/
func (h *PageHandler) Item(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	signature, apiErr := signatureParam(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	item := h.service.GetItemPlus(r.Context(), userID, signature)
	if item == nil {
		writeError(w, model.NewItemNotFoundError(userID, signature))
		return
	}

	comments := h.service.GetComments(r.Context(), userID, signature, content.DefaultCommentCount)
	if comments == nil {
		comments = []model.EnrichedItem{}
	}

	writeJSON(w, itemPageResponse{
		Title:    item.User.DisplayName + ": Post",
		Item:     *item,
		Comments: comments,
		Editable: isViewer(r, userID),
	})
}

// ItemFragment はアイテム単体を返す。ページの一部を差し替える用途で使う。
// GET /x/item?u={uid}&s={sig}
func (h *PageHandler) ItemFragment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID, err := model.ParseUserID(q.Get("u"))
	if err != nil {
		writeError(w, model.NewInvalidIDError("ユーザーID", q.Get("u")))
		return
	}
	signature, err := model.ParseSignature(q.Get("s"))
	if err != nil {
		writeError(w, model.NewInvalidIDError("署名", q.Get("s")))
		return
	}

	item := h.service.GetItemPlus(r.Context(), userID, signature)
	if item == nil {
		writeError(w, model.NewItemNotFoundError(userID, signature))
		return
	}

	writeJSON(w, itemFragmentResponse{
		Item:     *item,
		Editable: isViewer(r, userID),
	})
}

// writePage は空ページの扱いを適用してページレスポンスを書き込む。
//   - afterを指定して1件もない: beforeの有無にかかわらず、カーソルなしのページへリダイレクト
//   - beforeを指定して1件もなく、さらに古い側のカーソルもない: 最後のページを過ぎたことをEndで示す
func (h *PageHandler) writePage(w http.ResponseWriter, r *http.Request, title string, user *model.DisplayName, window pagination.Window, results content.PaginatedResults) {
	if len(results.Items) == 0 && window.After != nil {
		http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
		return
	}

	items := results.Items
	if items == nil {
		items = []model.EnrichedItem{}
	}

	writeJSON(w, pageResponse{
		Title:      title,
		User:       user,
		Items:      items,
		Pagination: results.Pagination,
		End:        len(items) == 0 && window.Before != nil && results.Pagination.Before == nil,
	})
}

// upstreamFailed はコンテンツソースの一覧取得失敗を502として返す。
func (h *PageHandler) upstreamFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("ページの読み込みに失敗しました",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	writeError(w, model.NewUpstreamFailedError())
}

// isViewer はリクエストの閲覧者がuserIDかを返す。
func isViewer(r *http.Request, userID model.UserID) bool {
	viewer, ok := middleware.ViewerFromContext(r.Context())
	return ok && viewer == userID
}
