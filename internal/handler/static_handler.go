package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/diskuto-web/internal/model"
)

// robotsTxt はクローラー向けの指示。
// 双方向のページ送りとフィードページを重複してインデックスさせない。
const robotsTxt = `User-Agent: *

# Site allows bi-directional navigation. Don't need to index it twice:
Disallow: /*?after=*

# Redundant with each user's "posts" page:
Disallow: /u/*/feed*
`

// StaticHandler は外部サービスに依存しない補助エンドポイントのハンドラー。
type StaticHandler struct {
	apiURL string
}

// NewStaticHandler はStaticHandlerを生成する。apiURLはクライアントに公開するAPIサーバーのURL。
func NewStaticHandler(apiURL string) *StaticHandler {
	return &StaticHandler{apiURL: strings.TrimRight(apiURL, "/")}
}

// infoResponse はフロントエンドが参照するサイト情報。
type infoResponse struct {
	APIURL string `json:"apiUrl"`
}

// Info はAPIサーバーのURLを返す。
// GET /diskuto-web/info
func (h *StaticHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, infoResponse{APIURL: h.apiURL})
}

// Robots はrobots.txtを返す。
// GET /robots.txt
func (h *StaticHandler) Robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(robotsTxt))
}

// Health はヘルスチェック応答を返す。
// GET /health
func (h *StaticHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// Icon はユーザーアイコンをAPIサーバーへリダイレクトする。
// GET /u/{uid}/icon.png
func (h *StaticHandler) Icon(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := userIDParam(r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	http.Redirect(w, r, h.apiURL+"/diskuto/users/"+userID.String()+"/icon.png", http.StatusMovedPermanently)
}

// File はアイテムの添付ファイルをAPIサーバーへリダイレクトする。
// GET /u/{uid}/i/{sig}/files/{name}
func (h *StaticHandler) File(w http.ResponseWriter, r *http.Request) {
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
	name := chi.URLParam(r, "name")

	target := h.apiURL + "/diskuto/users/" + userID.String() +
		"/items/" + signature.String() + "/files/" + url.PathEscape(name)
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// AddTrailingSlash は末尾にスラッシュを付けたパスへリダイレクトする。
// GET /u/{uid}, /u/{uid}/i/{sig}
func (h *StaticHandler) AddTrailingSlash(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// NotFound は未定義のルートに統一エラーフォーマットの404を返す。
func (h *StaticHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, model.NewNotFoundError(r.URL.Path))
}
